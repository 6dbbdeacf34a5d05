// Package pipelinesmgr is the client for the pipelines manager
// service: it owns Pipeline Configuration registration, cron
// scheduling, and run lifecycle control (stop/delete), while
// internal/pipeline only does the stateless expansion.
package pipelinesmgr

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sitefed/labwork/internal/pipeline"
	"github.com/sitefed/labwork/internal/transport"
)

// Client talks to the pipelines manager over internal/transport.
type Client struct {
	transport *transport.Client
}

func New(t *transport.Client) *Client {
	return &Client{transport: t}
}

// registerResponse is the manager's response to a configuration submission.
type registerResponse struct {
	ID string `json:"id"`
}

// Register submits a Pipeline Configuration and returns its assigned id.
func (c *Client) Register(ctx context.Context, cfg *pipeline.Configuration) (string, error) {
	var resp registerResponse
	if err := c.transport.Do(ctx, "POST", "/pipelines", cfg, &resp); err != nil {
		return "", fmt.Errorf("pipelinesmgr: register: %w", err)
	}
	return resp.ID, nil
}

// Get fetches a previously registered configuration by id.
func (c *Client) Get(ctx context.Context, id string) (*pipeline.Configuration, error) {
	var cfg pipeline.Configuration
	if err := c.transport.Do(ctx, "GET", "/pipelines/"+url.PathEscape(id), nil, &cfg); err != nil {
		return nil, fmt.Errorf("pipelinesmgr: get %s: %w", id, err)
	}
	return &cfg, nil
}

// Stop halts further firing of a running or scheduled pipeline without
// deleting its registration.
func (c *Client) Stop(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "POST", "/pipelines/"+url.PathEscape(id)+"/stop", nil, nil); err != nil {
		return fmt.Errorf("pipelinesmgr: stop %s: %w", id, err)
	}
	return nil
}

// Delete removes a pipeline registration entirely.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "DELETE", "/pipelines/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("pipelinesmgr: delete %s: %w", id, err)
	}
	return nil
}

// ScheduleRegister registers a configuration's cron schedule
// (Schedule.Cronspec/Count) independently of the one-shot Register
// call, so a configuration can be re-scheduled without a full
// re-registration.
func (c *Client) ScheduleRegister(ctx context.Context, id string, schedule *pipeline.Schedule) (string, error) {
	var resp registerResponse
	if err := c.transport.Do(ctx, "POST", "/pipelines/"+url.PathEscape(id)+"/schedules", schedule, &resp); err != nil {
		return "", fmt.Errorf("pipelinesmgr: schedule register %s: %w", id, err)
	}
	return resp.ID, nil
}

// ScheduleDelete cancels a registered schedule.
func (c *Client) ScheduleDelete(ctx context.Context, id, scheduleID string) error {
	path := "/pipelines/" + url.PathEscape(id) + "/schedules/" + url.PathEscape(scheduleID)
	if err := c.transport.Do(ctx, "DELETE", path, nil, nil); err != nil {
		return fmt.Errorf("pipelinesmgr: schedule delete %s/%s: %w", id, scheduleID, err)
	}
	return nil
}
