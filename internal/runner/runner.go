// Package runner implements the long-lived withdraw/execute/update
// loop: repeatedly withdraw a Work item, dispatch it to either a
// subprocess or a registered function, enforce its timeout and retry
// bound, and persist the outcome.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/registry"
	"github.com/sitefed/labwork/internal/work"
)

// Notifier is the subset of notify.Notifier the runner depends on.
type Notifier interface {
	Notify(ctx context.Context, w *work.Work) error
}

// BucketClient is the subset of bucket.Client (or memqueue.Queue) the
// runner depends on.
type BucketClient interface {
	Withdraw(ctx context.Context, pipeline string, filter bucket.Filter) (*work.Work, error)
	Update(ctx context.Context, w *work.Work) error
}

// GracePeriod is how long a killed process group is given between
// SIGTERM and SIGKILL.
const GracePeriod = 5 * time.Second

// Runner withdraws and executes Work for one pipeline.
type Runner struct {
	Bucket   BucketClient
	Registry *registry.Registry
	Pipeline string
	Filter   bucket.Filter

	// Notifier dispatches a terminal Work's notification config, if
	// any. Optional: a nil Notifier skips dispatch entirely.
	Notifier Notifier

	// Lifetime bounds the number of Work items processed; 0 means run
	// forever.
	Lifetime int
	// SleepInterval is how long to wait between empty withdraws.
	SleepInterval time.Duration

	// Now returns the current time as a Unix-epoch float; overridable
	// for deterministic tests.
	Now func() float64
	// Sleep is the wait function used between empty withdraws;
	// overridable for tests.
	Sleep func(ctx context.Context, d time.Duration)
}

func (r *Runner) now() float64 {
	if r.Now != nil {
		return r.Now()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Run loops until ctx is cancelled or Lifetime is exhausted. It
// returns nil on graceful shutdown and a non-nil error only when a
// backend call (withdraw/update) fails after its own retries are
// exhausted: a runner propagates backend errors but never execution
// errors, which are instead recorded on the Work.
func (r *Runner) Run(ctx context.Context) error {
	iterations := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.Lifetime > 0 && iterations >= r.Lifetime {
			return nil
		}

		w, err := r.Bucket.Withdraw(ctx, r.Pipeline, r.Filter)
		if err != nil {
			return fmt.Errorf("runner: withdraw: %w", err)
		}
		if w == nil {
			r.sleep(ctx, r.SleepInterval)
			continue
		}

		iterations++
		if err := r.runOne(ctx, w); err != nil {
			return err
		}
	}
}

func (r *Runner) runOne(ctx context.Context, w *work.Work) error {
	w.Start = r.now()
	w.Status = work.StatusRunning

	if w.Attempt > w.Retries+1 {
		w.Status = work.StatusFailure
		w.Results = work.DeepMerge(w.Results, map[string]interface{}{"error": "attempt exceeds retries+1"})
	} else {
		r.dispatch(ctx, w)
	}

	w.Stop = r.now()

	// Persist with a background-derived context so that an outer
	// cancellation doesn't also abort the final update; the runner
	// must record the outcome of work it already committed to.
	updateCtx := context.WithoutCancel(ctx)
	if err := r.Bucket.Update(updateCtx, w); err != nil {
		return fmt.Errorf("runner: update %s: %w", w.ID, err)
	}

	if r.Notifier != nil && w.Status.Terminal() {
		// Notification dispatch is best-effort: a channel-delivery
		// failure never turns a completed Work item back into a runner
		// error.
		_ = r.Notifier.Notify(updateCtx, w)
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, w *work.Work) {
	execCtx := ctx
	var cancel context.CancelFunc
	if w.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(w.Timeout)*time.Second)
		defer cancel()
	}

	var outcome dispatchOutcome
	switch {
	case len(w.Command) > 0:
		outcome = runCommand(execCtx, w.Command)
	case w.Function != "":
		outcome = r.runFunction(execCtx, w)
	default:
		outcome = dispatchOutcome{err: fmt.Errorf("runner: work %s has neither function nor command", w.ID)}
	}

	switch {
	case outcome.err == nil && !outcome.failed:
		w.Status = work.StatusSuccess
		w.Results = work.DeepMerge(w.Results, outcome.results)
		w.Products = append(w.Products, outcome.products...)
		w.Plots = append(w.Plots, outcome.plots...)
	case ctx.Err() != nil:
		w.Status = work.StatusFailure
		w.Results = work.DeepMerge(w.Results, outcome.results)
		w.Results = work.DeepMerge(w.Results, map[string]interface{}{"error": "interrupted"})
	case execCtx.Err() == context.DeadlineExceeded:
		w.Status = work.StatusFailure
		w.Results = work.DeepMerge(w.Results, outcome.results)
		w.Results = work.DeepMerge(w.Results, map[string]interface{}{"error": "timeout"})
	case outcome.failed:
		// Expected execution failure (nonzero exit, function error
		// triple): results already carry the failure detail.
		w.Status = work.StatusFailure
		w.Results = work.DeepMerge(w.Results, outcome.results)
	default:
		w.Status = work.StatusFailure
		w.Results = work.DeepMerge(w.Results, outcome.results)
		w.Results = work.DeepMerge(w.Results, map[string]interface{}{"error": outcome.err.Error()})
	}
}

// dispatchOutcome separates an expected execution-level failure
// (failed=true: nonzero exit, function error) — whose detail already
// lives in results — from a genuine infrastructure error (err set):
// a process that couldn't start, a Work with neither function nor
// command, a marshaling failure. A registry lookup miss is an Invoke
// error and so is reported as failed=true.
type dispatchOutcome struct {
	results  map[string]interface{}
	products []string
	plots    []string
	failed   bool
	err      error
}

func (r *Runner) runFunction(ctx context.Context, w *work.Work) dispatchOutcome {
	workMap, err := workToMap(w)
	if err != nil {
		return dispatchOutcome{err: err}
	}
	result, err := r.Registry.Invoke(ctx, w.Function, w.Parameters, workMap)
	if err != nil {
		return dispatchOutcome{
			failed:  true,
			results: map[string]interface{}{"error": err.Error()},
		}
	}
	return dispatchOutcome{results: result.Results, products: result.Products, plots: result.Plots}
}

func workToMap(w *work.Work) (map[string]interface{}, error) {
	encoded, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("runner: marshal work %s: %w", w.ID, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("runner: unmarshal work %s: %w", w.ID, err)
	}
	return m, nil
}
