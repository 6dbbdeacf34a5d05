package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitefed/labwork/internal/work"
)

// BucketClient is the subset of the bucket contract the stage driver
// needs: deposit a stage's Work items, then poll them by id until
// they reach a terminal status.
type BucketClient interface {
	Deposit(ctx context.Context, items []*work.Work) ([]string, error)
	ListByIDs(ctx context.Context, ids []string) ([]*work.Work, error)
}

// DefaultPollInterval is how often Driver.Run polls the bucket for a
// stage's outstanding Work to reach a terminal status.
const DefaultPollInterval = 2 * time.Second

// RunResult summarizes one Driver.Run call: every Work id actually
// deposited, and every step skipped because its `if` condition didn't
// Gate against the aggregate outcome of the prior stages.
type RunResult struct {
	Deposited []string
	Skipped   []string
}

// Driver walks a Configuration's expanded steps one stage at a time:
// per spec.md §5's ordering guarantee, stage N+1 is never deposited
// until every stage-1..N Work item is terminal, and per §4.4 step 6 a
// step whose `if` doesn't Gate against the aggregate outcome of every
// prior stage is never deposited at all.
type Driver struct {
	Bucket BucketClient

	// PollInterval is how often a stage's outstanding Work is
	// re-checked for terminal status. Defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Sleep is the wait function used between polls; overridable for
	// deterministic tests.
	Sleep func(ctx context.Context, d time.Duration)
}

func (d *Driver) pollInterval() time.Duration {
	if d.PollInterval > 0 {
		return d.PollInterval
	}
	return DefaultPollInterval
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(ctx, dur)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(dur):
	}
}

// Run expands cfg and deposits its steps stage by stage, gating each
// stage's steps against the aggregate outcome of every prior stage and
// blocking between stages until every deposited item in the current
// stage reaches a terminal status.
func (d *Driver) Run(ctx context.Context, cfg *Configuration) (*RunResult, error) {
	steps, err := Expand(cfg)
	if err != nil {
		return nil, err
	}

	byStage := make(map[int][]ExpandedStep, len(steps))
	for _, s := range steps {
		byStage[s.Stage] = append(byStage[s.Stage], s)
	}

	result := &RunResult{}
	// The first stage has no prior stage to gate on; every reserved
	// condition (success/failure/always) and the empty condition all
	// evaluate true against it.
	prior := StageOutcome{AllSucceeded: true}

	for _, stage := range GroupByStage(steps) {
		var gated []ExpandedStep
		for _, s := range byStage[stage] {
			if Gate(s.If, prior) {
				gated = append(gated, s)
			} else {
				result.Skipped = append(result.Skipped, s.StepName)
			}
		}
		if len(gated) == 0 {
			continue
		}

		items := make([]*work.Work, len(gated))
		for i, s := range gated {
			w, err := workFromTemplate(s.Work)
			if err != nil {
				return nil, fmt.Errorf("pipeline: stage %d step %q: %w", stage, s.StepName, err)
			}
			items[i] = w
		}

		ids, err := d.Bucket.Deposit(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("pipeline: deposit stage %d: %w", stage, err)
		}
		result.Deposited = append(result.Deposited, ids...)

		terminal, err := d.awaitTerminal(ctx, ids)
		if err != nil {
			return nil, err
		}
		stageOutcome := aggregateOutcome(terminal)
		prior.AnyFailed = prior.AnyFailed || stageOutcome.AnyFailed
		prior.AllSucceeded = prior.AllSucceeded && stageOutcome.AllSucceeded
	}

	return result, nil
}

// awaitTerminal polls the bucket until every id in ids has reached a
// terminal status, or ctx is cancelled.
func (d *Driver) awaitTerminal(ctx context.Context, ids []string) ([]*work.Work, error) {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	done := make([]*work.Work, 0, len(ids))
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		items, err := d.Bucket.ListByIDs(ctx, pendingIDs(pending))
		if err != nil {
			return nil, fmt.Errorf("pipeline: poll stage status: %w", err)
		}
		for _, w := range items {
			if pending[w.ID] && w.Status.Terminal() {
				delete(pending, w.ID)
				done = append(done, w)
			}
		}
		if len(pending) == 0 {
			return done, nil
		}

		d.sleep(ctx, d.pollInterval())
	}
}

func pendingIDs(pending map[string]bool) []string {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	return ids
}

// aggregateOutcome reduces one stage's terminal Work into a
// StageOutcome, which Run folds into the outcome later stages' `if`
// conditions are gated against: success means every item succeeded,
// failure means at least one didn't.
func aggregateOutcome(items []*work.Work) StageOutcome {
	outcome := StageOutcome{AllSucceeded: true}
	for _, w := range items {
		if w.Status != work.StatusSuccess {
			outcome.AnyFailed = true
			outcome.AllSucceeded = false
		}
	}
	return outcome
}

// workFromTemplate converts an expanded step's generic template map
// into a concrete Work, the same JSON round-trip the runner uses to go
// the other direction (internal/runner's workToMap).
func workFromTemplate(tmpl map[string]interface{}) (*work.Work, error) {
	encoded, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("marshal work template: %w", err)
	}
	w := work.New()
	if err := json.Unmarshal(encoded, w); err != nil {
		return nil, fmt.Errorf("unmarshal work template: %w", err)
	}
	return w, nil
}
