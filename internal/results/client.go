// Package results is the client for the results service: the
// permanent store a Work item's outcome and archived artifacts move
// to once the transfer daemon has applied its archive policy.
package results

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sitefed/labwork/internal/transport"
	"github.com/sitefed/labwork/internal/work"
)

// Client talks to the results service over internal/transport.
type Client struct {
	transport *transport.Client
}

func New(t *transport.Client) *Client {
	return &Client{transport: t}
}

// Record deposits a terminal Work item's final state.
func (c *Client) Record(ctx context.Context, w *work.Work) error {
	if err := c.transport.Do(ctx, "POST", "/results", w, nil); err != nil {
		return fmt.Errorf("results: record %s: %w", w.ID, err)
	}
	return nil
}

// Query narrows a lookup against the results store.
type Query struct {
	Pipeline string
	Site     string
	Group    string
	Limit    int
}

func (q Query) queryString() string {
	v := url.Values{}
	if q.Pipeline != "" {
		v.Set("pipeline", q.Pipeline)
	}
	if q.Site != "" {
		v.Set("site", q.Site)
	}
	if q.Group != "" {
		v.Set("group", q.Group)
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	return v.Encode()
}

// Find returns the results matching q.
func (c *Client) Find(ctx context.Context, q Query) ([]*work.Work, error) {
	path := "/results"
	if qs := q.queryString(); qs != "" {
		path += "?" + qs
	}

	var out []*work.Work
	if err := c.transport.Do(ctx, "GET", path, nil, &out); err != nil {
		return nil, fmt.Errorf("results: find: %w", err)
	}
	return out, nil
}
