// Package transfer runs the periodic daemon that moves terminal Work
// items out of the bucket: archiving their artifacts to a POSIX or
// object-store backend per policy, forwarding the outcome to the
// results service, and only then deleting the bucket entry.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitefed/labwork/internal/archive"
	"github.com/sitefed/labwork/internal/work"
	"github.com/sitefed/labwork/internal/workspace"
)

// DefaultBatchSize is the number of terminal Work items listed per
// daemon tick when BatchSize is unset.
const DefaultBatchSize = 50

// BucketClient is the subset of the bucket contract the daemon needs.
type BucketClient interface {
	ListTerminal(ctx context.Context, pipeline, site string, limit int) ([]*work.Work, error)
	Delete(ctx context.Context, ids []string) error
}

// ResultsClient is the subset of the results contract the daemon needs.
type ResultsClient interface {
	Record(ctx context.Context, w *work.Work) error
}

// PolicyViolation aborts the whole in-flight batch: an unknown archive
// mode, or a site with no POSIX/S3 target
// configured. Per-item failures (a missing source file, a results
// service timeout) never produce one of these — they're recorded on
// that item's outcome instead.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("transfer: policy violation: %s", e.Reason)
}

// ItemOutcome records what happened to one Work item during a batch.
type ItemOutcome struct {
	ID       string
	Archived bool
	Recorded bool
	Deleted  bool
	Err      error
}

// BatchResult summarizes one RunOnce call.
type BatchResult struct {
	Outcomes  []ItemOutcome
	Succeeded int
	Failed    int
}

// Daemon periodically lists a pipeline/site's terminal Work and
// transfers it out of the bucket.
type Daemon struct {
	Bucket    BucketClient
	Results   ResultsClient
	Workspace *workspace.Workspace

	Pipeline string
	Site     string

	BatchSize      int
	Interval       time.Duration
	MaxConcurrency int

	// OnBatchError is called with any non-fatal error returned by a
	// RunOnce tick (a listing failure, for instance) so the caller can
	// alert on it before the next tick retries. Never called for a
	// PolicyViolation, which Run always surfaces by returning.
	OnBatchError func(error)
}

func (d *Daemon) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultBatchSize
}

func (d *Daemon) maxConcurrency(n int) int {
	if d.MaxConcurrency > 0 {
		return d.MaxConcurrency
	}
	return n
}

// RunOnce lists and transfers one batch. A *PolicyViolation return
// means no item in the batch was touched; any other per-item failure
// is isolated and reported in BatchResult instead of aborting.
func (d *Daemon) RunOnce(ctx context.Context) (*BatchResult, error) {
	items, err := d.Bucket.ListTerminal(ctx, d.Pipeline, d.Site, d.batchSize())
	if err != nil {
		return nil, fmt.Errorf("transfer: list terminal work: %w", err)
	}
	if len(items) == 0 {
		return &BatchResult{}, nil
	}

	backends, err := d.resolveBackends(items)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrency(len(items)))

	outcomes := make([]ItemOutcome, len(items))
	for i, w := range items {
		i, w := i, w
		g.Go(func() error {
			outcomes[i] = d.transferOne(gctx, w, backends)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err == nil {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// resolveBackends pre-resolves every (site, mode) pair the batch will
// need before any item is touched, so an unresolvable policy aborts
// the whole batch rather than leaving it partially archived.
func (d *Daemon) resolveBackends(items []*work.Work) (map[string]archive.Backend, error) {
	backends := make(map[string]archive.Backend)
	for _, w := range items {
		for _, mode := range []work.ArchiveMode{w.ConfigField.Archive.Plots, w.ConfigField.Archive.Products} {
			if mode == "" || mode == work.ArchiveBypass {
				continue
			}
			switch mode {
			case work.ArchiveDelete, work.ArchiveCopy, work.ArchiveMove, work.ArchiveUpload:
			default:
				return nil, &PolicyViolation{Reason: fmt.Sprintf("site %q: unknown archive mode %q", w.Site, mode)}
			}
			key := w.Site + "|" + string(mode)
			if _, ok := backends[key]; ok {
				continue
			}
			backend, err := archive.ForSite(d.Workspace, w.Site, mode)
			if err != nil {
				return nil, &PolicyViolation{Reason: err.Error()}
			}
			backends[key] = backend
		}
	}
	return backends, nil
}

func (d *Daemon) transferOne(ctx context.Context, w *work.Work, backends map[string]archive.Backend) ItemOutcome {
	outcome := ItemOutcome{ID: w.ID}

	if err := d.archiveClass(ctx, w, "products", w.Products, w.ConfigField.Archive.Products, backends); err != nil {
		outcome.Err = err
		return outcome
	}
	if err := d.archiveClass(ctx, w, "plots", w.Plots, w.ConfigField.Archive.Plots, backends); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Archived = true

	if w.ConfigField.Archive.Results {
		if err := d.Results.Record(ctx, w); err != nil {
			outcome.Err = fmt.Errorf("record results: %w", err)
			return outcome
		}
	}
	outcome.Recorded = true

	if err := d.Bucket.Delete(ctx, []string{w.ID}); err != nil {
		outcome.Err = fmt.Errorf("delete from bucket: %w", err)
		return outcome
	}
	outcome.Deleted = true
	return outcome
}

func (d *Daemon) archiveClass(ctx context.Context, w *work.Work, class string, paths []string, mode work.ArchiveMode, backends map[string]archive.Backend) error {
	if mode == "" || mode == work.ArchiveBypass {
		return nil
	}
	backend, ok := backends[w.Site+"|"+string(mode)]
	if !ok {
		return fmt.Errorf("archive %s: no resolved backend for site %q mode %q", class, w.Site, mode)
	}
	for _, p := range paths {
		if err := backend.Apply(ctx, mode, w.Pipeline, w.ID, class, p); err != nil {
			return fmt.Errorf("archive %s %s: %w", class, p, err)
		}
	}
	return nil
}

// Run loops RunOnce on Interval until ctx is cancelled or a tick
// returns a PolicyViolation.
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
			var violation *PolicyViolation
			if errors.As(err, &violation) {
				return err
			}
			if d.OnBatchError != nil {
				d.OnBatchError(err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
