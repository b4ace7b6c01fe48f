package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/templamart/internal/notify"
	"github.com/utafrali/templamart/internal/storage"
	"github.com/utafrali/templamart/internal/store"
)

const (
	// DefaultSessionIdleTTL is how long an unused session stays resident.
	DefaultSessionIdleTTL = 30 * time.Minute
	// DefaultMaxSessions caps resident sessions.
	DefaultMaxSessions = 10000
)

const (
	evictIdle     = "idle"
	evictCapacity = "capacity"
)

var (
	residentSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "templamart_shopper_sessions",
		Help: "Shopper sessions resident in memory.",
	})

	sessionEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templamart_shopper_session_evictions_total",
			Help: "Resident shopper sessions dropped, by reason.",
		},
		[]string{"reason"},
	)
)

type session struct {
	store   *store.Store
	notices *notify.Recorder

	lastSeen atomic.Int64
	active   atomic.Int32
}

// Option configures a ShopperService.
type Option func(*ShopperService)

// WithSessionLimits bounds the resident sessions. Sessions unused for idle
// are dropped, and once more than max are resident the least recently used
// idle ones go first. A non-positive value disables that bound.
func WithSessionLimits(idle time.Duration, max int) Option {
	return func(s *ShopperService) {
		s.idleTTL = idle
		s.maxSessions = max
	}
}

// acquire returns the resident session for id, opening it on first use. The
// session cannot be evicted until release is called.
func (s *ShopperService) acquire(ctx context.Context, id string) (*session, func(), error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	if ok {
		s.hold(sess)
	}
	s.mu.RUnlock()
	if ok {
		return sess, s.releaser(sess), nil
	}

	v, err, _ := s.opening.Do(id, func() (any, error) {
		s.mu.RLock()
		existing, ok := s.sessions[id]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		notices := notify.NewRecorder(notify.DefaultRecorderSize)
		chain := notify.Multi{notices, notify.NewLog(s.logger.With(slog.String("session_id", id)))}
		if s.notifiers != nil {
			if extra := s.notifiers(id); extra != nil {
				chain = append(chain, extra)
			}
		}

		st, err := store.Open(ctx, storage.Namespace(s.slots, id),
			store.WithLogger(s.logger),
			store.WithNotifier(chain),
		)
		if err != nil {
			return nil, fmt.Errorf("open shopper store: %w", err)
		}

		opened := &session{store: st, notices: notices}
		opened.lastSeen.Store(s.now().UnixNano())

		s.mu.Lock()
		s.sessions[id] = opened
		s.evictLocked(ctx, id)
		residentSessions.Set(float64(len(s.sessions)))
		s.mu.Unlock()

		s.logger.DebugContext(ctx, "shopper session opened",
			slog.String("session_id", id),
			slog.Bool("shared_slots", st.Shared()),
		)
		return opened, nil
	})
	if err != nil {
		return nil, nil, err
	}

	// The session may have been evicted between open and here. Holding it
	// under the lock only counts when it is still the resident one.
	sess = v.(*session)
	s.mu.Lock()
	if cur, ok := s.sessions[id]; ok {
		sess = cur
	} else {
		s.sessions[id] = sess
		residentSessions.Set(float64(len(s.sessions)))
	}
	s.hold(sess)
	s.mu.Unlock()
	return sess, s.releaser(sess), nil
}

// hold marks sess in use. Callers hold s.mu.
func (s *ShopperService) hold(sess *session) {
	sess.active.Add(1)
	sess.lastSeen.Store(s.now().UnixNano())
}

func (s *ShopperService) releaser(sess *session) func() {
	return func() {
		sess.lastSeen.Store(s.now().UnixNano())
		sess.active.Add(-1)
	}
}

// evictLocked drops idle sessions past the TTL, at most once per half TTL,
// then the least recently used idle sessions while over capacity. keep is
// never evicted. Callers hold s.mu for writing.
func (s *ShopperService) evictLocked(ctx context.Context, keep string) {
	now := s.now()

	if s.idleTTL > 0 && now.Sub(s.lastSweep) >= s.idleTTL/2 {
		s.lastSweep = now
		cutoff := now.Add(-s.idleTTL).UnixNano()
		for id, sess := range s.sessions {
			if id == keep || sess.active.Load() > 0 || sess.lastSeen.Load() > cutoff {
				continue
			}
			delete(s.sessions, id)
			sessionEvictions.WithLabelValues(evictIdle).Inc()
		}
	}

	for s.maxSessions > 0 && len(s.sessions) > s.maxSessions {
		victim, oldest := "", int64(0)
		for id, sess := range s.sessions {
			if id == keep || sess.active.Load() > 0 {
				continue
			}
			if seen := sess.lastSeen.Load(); victim == "" || seen < oldest {
				victim, oldest = id, seen
			}
		}
		if victim == "" {
			s.logger.WarnContext(ctx, "all resident sessions busy, exceeding capacity",
				slog.Int("resident", len(s.sessions)),
				slog.Int("max", s.maxSessions),
			)
			return
		}
		delete(s.sessions, victim)
		sessionEvictions.WithLabelValues(evictCapacity).Inc()
	}
}

// resident returns the number of sessions held in memory.
func (s *ShopperService) resident() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
