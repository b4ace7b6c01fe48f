// Package catalog fetches template listings from the catalog REST backend.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/templamart/internal/domain"
	apperrors "github.com/utafrali/templamart/pkg/errors"
	"github.com/utafrali/templamart/pkg/httpclient"
)

const serviceName = "catalog"

// Getter issues GET requests. *httpclient.CircuitBreakerClient satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Client resolves item IDs to catalog records.
type Client struct {
	http    Getter
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(baseURL string, getter Getter, logger *slog.Logger) *Client {
	return &Client{
		http:    getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type itemEnvelope struct {
	Data *domain.CatalogItem `json:"data"`
}

// GetItem fetches the listing with the given ID.
func (c *Client) GetItem(ctx context.Context, id string) (domain.CatalogItem, error) {
	if strings.TrimSpace(id) == "" {
		return domain.CatalogItem{}, apperrors.InvalidInput("item id is required")
	}

	endpoint := c.baseURL + "/api/v1/templates/" + url.PathEscape(id)

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CatalogItem{}, ctxErr
		}
		c.logger.WarnContext(ctx, "catalog request failed",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
			slog.Bool("circuit_open", errors.Is(err, httpclient.ErrCircuitOpen)),
		)
		return domain.CatalogItem{}, apperrors.ServiceUnavailable("catalog is unavailable")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpclient.ParseResponseError(resp, serviceName)
		// A rejection here is about this service's access to the catalog,
		// not the shopper's session.
		if errors.Is(err, apperrors.ErrUnauthorized) {
			c.logger.ErrorContext(ctx, "catalog refused access",
				slog.String("item_id", id),
				slog.Int("status", resp.StatusCode),
				slog.String("error", err.Error()),
			)
			return domain.CatalogItem{}, apperrors.ServiceUnavailable("catalog is unavailable")
		}
		return domain.CatalogItem{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env itemEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("decode catalog item %s: %w", id, err)
	}
	if env.Data == nil {
		return domain.CatalogItem{}, fmt.Errorf("decode catalog item %s: empty data", id)
	}
	if env.Data.ID != id {
		return domain.CatalogItem{}, fmt.Errorf("catalog returned item %q for %q", env.Data.ID, id)
	}

	return *env.Data, nil
}
