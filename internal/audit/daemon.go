// Package audit runs the periodic daemon that reconciles bucket state
// against wall-clock time and the pipeline configurations Work items
// claim to belong to: it force-fails Work stuck past its timeout,
// flags terminal failures nobody has transferred out, and cancels
// orphaned steps. It never deletes a Work item: that is the transfer
// daemon's job once the outcome has actually been recorded.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sitefed/labwork/internal/pipeline"
	"github.com/sitefed/labwork/internal/work"
)

// DefaultBuffer is the grace period added past a Work's nominal
// deadline before it's classified expired or stale.
const DefaultBuffer = time.Hour

// BucketClient is the subset of the bucket contract the daemon needs.
type BucketClient interface {
	ListActive(ctx context.Context, pipeline, site string) ([]*work.Work, error)
	ListTerminal(ctx context.Context, pipeline, site string, limit int) ([]*work.Work, error)
	Update(ctx context.Context, w *work.Work) error
}

// ConfigProvider resolves a pipeline name to its current
// Configuration, so the daemon can tell whether a running Work's step
// is still declared.
type ConfigProvider interface {
	Lookup(pipelineName string) (*pipeline.Configuration, bool)
}

// Classification names why the daemon acted on a Work item.
type Classification string

const (
	ClassificationExpired       Classification = "expired"
	ClassificationStaleFailure  Classification = "stale_failure"
	ClassificationOrphan        Classification = "orphan"
)

// Finding records one classified Work item and what the daemon did
// about it.
type Finding struct {
	ID             string
	Classification Classification
	Mutated        bool
}

// BatchResult summarizes one RunOnce call.
type BatchResult struct {
	Findings []Finding
}

// Daemon periodically reconciles a pipeline/site's bucket entries.
type Daemon struct {
	Bucket  BucketClient
	Configs ConfigProvider

	Pipeline string
	Site     string

	// Buffer is the grace period past a deadline before classification
	// kicks in. Defaults to DefaultBuffer.
	Buffer time.Duration
	// Now returns the current time as a Unix-epoch float, matching
	// work.Work's timestamp fields.
	Now func() float64

	Interval time.Duration
}

func (d *Daemon) buffer() time.Duration {
	if d.Buffer > 0 {
		return d.Buffer
	}
	return DefaultBuffer
}

func (d *Daemon) now() float64 {
	if d.Now != nil {
		return d.Now()
	}
	return float64(time.Now().Unix())
}

// RunOnce classifies one batch of active and terminal Work.
func (d *Daemon) RunOnce(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{}

	active, err := d.Bucket.ListActive(ctx, d.Pipeline, d.Site)
	if err != nil {
		return nil, fmt.Errorf("audit: list active work: %w", err)
	}
	for _, w := range active {
		if finding, err := d.classifyActive(ctx, w); err != nil {
			return nil, err
		} else if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}

	terminal, err := d.Bucket.ListTerminal(ctx, d.Pipeline, d.Site, 0)
	if err != nil {
		return nil, fmt.Errorf("audit: list terminal work: %w", err)
	}
	for _, w := range terminal {
		if finding := d.classifyTerminal(w); finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}

	return result, nil
}

func (d *Daemon) classifyActive(ctx context.Context, w *work.Work) (*Finding, error) {
	if orphan := d.isOrphan(w); orphan {
		w.Status = work.StatusCancelled
		w.Stop = d.now()
		if err := d.Bucket.Update(ctx, w); err != nil {
			return nil, fmt.Errorf("audit: cancel orphan %s: %w", w.ID, err)
		}
		return &Finding{ID: w.ID, Classification: ClassificationOrphan, Mutated: true}, nil
	}

	if w.Start > 0 && d.deadline(w) > 0 && d.now()-w.Start > d.deadline(w) {
		w.Status = work.StatusFailure
		w.Stop = d.now()
		w.Attempt++
		if w.Results == nil {
			w.Results = map[string]interface{}{}
		}
		w.Results["reason"] = "expired"
		if err := d.Bucket.Update(ctx, w); err != nil {
			return nil, fmt.Errorf("audit: expire %s: %w", w.ID, err)
		}
		return &Finding{ID: w.ID, Classification: ClassificationExpired, Mutated: true}, nil
	}

	return nil, nil
}

func (d *Daemon) deadline(w *work.Work) float64 {
	if w.Timeout <= 0 {
		return 0
	}
	return float64(w.Timeout) + d.buffer().Seconds()
}

func (d *Daemon) classifyTerminal(w *work.Work) *Finding {
	if w.Status != work.StatusFailure {
		return nil
	}
	if w.Stop == 0 || d.now()-w.Stop <= d.buffer().Seconds() {
		return nil
	}
	return &Finding{ID: w.ID, Classification: ClassificationStaleFailure, Mutated: false}
}

// isOrphan reports whether w's pipeline step (named by Group[0], the
// convention the pipeline expander deposits under) no longer exists
// in that pipeline's current configuration.
func (d *Daemon) isOrphan(w *work.Work) bool {
	if d.Configs == nil || len(w.Group) == 0 {
		return false
	}
	cfg, ok := d.Configs.Lookup(w.Pipeline)
	if !ok {
		return false
	}
	_, exists := cfg.Pipeline[w.Group[0]]
	return !exists
}

// Run loops RunOnce on Interval until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := d.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
