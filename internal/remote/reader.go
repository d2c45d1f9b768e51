package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) FetchUsers(ctx context.Context) ([]json.RawMessage, error) {
	return c.fetch(ctx, "users", "")
}

// FetchTrips returns trips by date, earliest first.
func (c *Client) FetchTrips(ctx context.Context) ([]json.RawMessage, error) {
	return c.fetch(ctx, "trips", "date.asc")
}

// FetchBookings returns bookings newest first.
func (c *Client) FetchBookings(ctx context.Context) ([]json.RawMessage, error) {
	return c.fetch(ctx, "bookings", "created_at.desc")
}

// FetchNotifications returns notifications newest first.
func (c *Client) FetchNotifications(ctx context.Context) ([]json.RawMessage, error) {
	return c.fetch(ctx, "notifications", "created_at.desc")
}

func (c *Client) fetch(ctx context.Context, table, order string) ([]json.RawMessage, error) {
	q := url.Values{"select": {"*"}}
	if order != "" {
		q.Set("order", order)
	}

	data, err := c.do(ctx, request{method: http.MethodGet, table: table, query: q})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}

	rows := []json.RawMessage{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}
