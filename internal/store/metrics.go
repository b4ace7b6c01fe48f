package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK    = "ok"
	resultNoop  = "noop"
	resultError = "error"
)

var (
	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templamart_store_mutations_total",
			Help: "Cart and wishlist mutations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	hydrationDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templamart_store_hydration_discards_total",
			Help: "Slots discarded at load because they were unreadable or invalid.",
		},
		[]string{"slot"},
	)

	swapConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "templamart_store_swap_conflicts_total",
			Help: "Compare-and-swap writes lost to a concurrent writer of the same slot.",
		},
		[]string{"slot"},
	)
)
