// Package bucket is the client for the bucket service: the HTTP queue
// of pending/active Work items. It exposes deposit/withdraw/update/
// delete, and a same-process sqlite-backed fake (see the memqueue subpackage)
// implementing the same atomic-dequeue contract for tests and local
// development.
package bucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sitefed/labwork/internal/transport"
	"github.com/sitefed/labwork/internal/work"
)

// Filter narrows a withdraw request. When multiple Work items match,
// the server returns the highest-priority, oldest-creation item.
type Filter struct {
	Event    []int
	Site     string
	Priority int
	User     string
	Tags     []string
	Parent   string
}

func (f Filter) queryString() string {
	q := url.Values{}
	for _, e := range f.Event {
		q.Add("event", strconv.Itoa(e))
	}
	if f.Site != "" {
		q.Set("site", f.Site)
	}
	if f.Priority != 0 {
		q.Set("priority", strconv.Itoa(f.Priority))
	}
	if f.User != "" {
		q.Set("user", f.User)
	}
	for _, t := range f.Tags {
		q.Add("tags", t)
	}
	if f.Parent != "" {
		q.Set("parent", f.Parent)
	}
	return q.Encode()
}

// Client talks to the bucket service over internal/transport.
type Client struct {
	transport *transport.Client
}

// New wraps an already-configured transport.Client.
func New(t *transport.Client) *Client {
	return &Client{transport: t}
}

// depositResponse is the bucket service's POST /work response shape.
type depositResponse struct {
	IDs []string `json:"ids"`
}

// Deposit submits items for queueing and returns their assigned ids.
func (c *Client) Deposit(ctx context.Context, items []*work.Work) ([]string, error) {
	var resp depositResponse
	if err := c.transport.Do(ctx, "POST", "/work", items, &resp); err != nil {
		return nil, fmt.Errorf("bucket: deposit: %w", err)
	}
	return resp.IDs, nil
}

// Withdraw atomically dequeues one matching Work item, or returns nil
// if the queue holds nothing matching pipeline/filter.
func (c *Client) Withdraw(ctx context.Context, pipeline string, filter Filter) (*work.Work, error) {
	path := fmt.Sprintf("/work/withdraw?pipeline=%s", url.QueryEscape(pipeline))
	if qs := filter.queryString(); qs != "" {
		path += "&" + qs
	}

	var w work.Work
	if err := c.transport.Do(ctx, "GET", path, nil, &w); err != nil {
		return nil, fmt.Errorf("bucket: withdraw: %w", err)
	}
	if w.ID == "" {
		// 204 No Content: transport.Do leaves w untouched.
		return nil, nil
	}
	return &w, nil
}

// Update persists the current state of w (the server is the source of
// truth for concurrent mutation ordering).
func (c *Client) Update(ctx context.Context, w *work.Work) error {
	if err := c.transport.Do(ctx, "PUT", "/work/"+url.PathEscape(w.ID), w, nil); err != nil {
		return fmt.Errorf("bucket: update %s: %w", w.ID, err)
	}
	return nil
}

// Delete removes the given Work ids from the queue.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	path := "/work?ids=" + strings.Join(ids, ",")
	if err := c.transport.Do(ctx, "DELETE", path, nil, nil); err != nil {
		return fmt.Errorf("bucket: delete %v: %w", ids, err)
	}
	return nil
}

// listResponse is the bucket service's GET /work listing response
// shape, shared by ListTerminal and ListActive.
type listResponse struct {
	Items []*work.Work `json:"items"`
}

// ListTerminal returns up to limit terminal-status Work items for
// pipeline/site, ordered oldest-creation first, as consumed by the
// transfer and audit daemons. limit <= 0 means unbounded: the limit
// query parameter is omitted entirely rather than sent as "0", which
// the bucket service would otherwise be free to read as "zero items".
func (c *Client) ListTerminal(ctx context.Context, pipeline, site string, limit int) ([]*work.Work, error) {
	path := fmt.Sprintf("/work?pipeline=%s&site=%s&status=terminal",
		url.QueryEscape(pipeline), url.QueryEscape(site))
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	var resp listResponse
	if err := c.transport.Do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("bucket: list terminal: %w", err)
	}
	return resp.Items, nil
}

// ListActive returns every non-terminal (queued or running) Work item
// for pipeline/site, as consumed by the audit daemon.
func (c *Client) ListActive(ctx context.Context, pipeline, site string) ([]*work.Work, error) {
	path := fmt.Sprintf("/work?pipeline=%s&site=%s&status=active",
		url.QueryEscape(pipeline), url.QueryEscape(site))
	var resp listResponse
	if err := c.transport.Do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("bucket: list active: %w", err)
	}
	return resp.Items, nil
}

// ListByIDs returns whichever of ids currently exist in the bucket,
// regardless of status, as consumed by the pipeline stage driver to
// poll a deposited stage for its Work items reaching a terminal state.
func (c *Client) ListByIDs(ctx context.Context, ids []string) ([]*work.Work, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/work?ids=" + strings.Join(ids, ",")
	var resp listResponse
	if err := c.transport.Do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("bucket: list by ids: %w", err)
	}
	return resp.Items, nil
}
