package remote

import (
	"context"
	"net/http"
	"net/url"

	"ridesync/internal/models"
)

// CheckConnection issues a single-row read bounded by the probe timeout.
// It never retries.
func (c *Client) CheckConnection(ctx context.Context) models.ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	_, err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("remote unreachable")
		return models.ConnectionStatus{Reachable: false}
	}
	return models.ConnectionStatus{Reachable: true}
}
