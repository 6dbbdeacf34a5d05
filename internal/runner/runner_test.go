package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/registry"
	"github.com/sitefed/labwork/internal/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	pending []*work.Work
	updated []*work.Work
}

func (f *fakeBucket) Withdraw(ctx context.Context, pipeline string, filter bucket.Filter) (*work.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	w := f.pending[0]
	f.pending = f.pending[1:]
	w.Attempt++
	return w, nil
}

func (f *fakeBucket) Update(ctx context.Context, w *work.Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, w)
	return nil
}

func noSleep(ctx context.Context, d time.Duration) {}

type fakeNotifier struct {
	mu      sync.Mutex
	notified []*work.Work
}

func (f *fakeNotifier) Notify(ctx context.Context, w *work.Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, w)
	return nil
}

func TestRunnerNotifiesOnTerminalStatus(t *testing.T) {
	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Command: []string{"true"}, Timeout: 5},
	}}
	fn := &fakeNotifier{}
	r := &Runner{Bucket: fb, Registry: registry.New(), Notifier: fn, Pipeline: "t1", Lifetime: 1, Sleep: noSleep}
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, fn.notified, 1)
	assert.Equal(t, "w1", fn.notified[0].ID)
}

func TestRunnerHappyPathFunction(t *testing.T) {
	reg := registry.New()
	reg.Register("tests.add", registry.Entry{
		ArgSource: registry.ArgKwargs,
		Kwargs: func(ctx context.Context, params map[string]interface{}) (registry.Result, error) {
			a := int(params["a"].(float64))
			b := int(params["b"].(float64))
			return registry.Result{Results: map[string]interface{}{"sum": a + b}}, nil
		},
	})

	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Function: "tests.add", Parameters: map[string]interface{}{"a": 1.0, "b": 2.0}, Timeout: 10, Retries: 2},
	}}

	r := &Runner{Bucket: fb, Registry: reg, Pipeline: "t1", Lifetime: 1, Sleep: noSleep}
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, fb.updated, 1)
	w := fb.updated[0]
	assert.Equal(t, work.StatusSuccess, w.Status)
	assert.Equal(t, 3, w.Results["sum"])
	assert.True(t, w.Start < w.Stop || w.Start == w.Stop)
	assert.Equal(t, 1, w.Attempt)
}

func TestRunnerCommandNonzeroExit(t *testing.T) {
	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Command: []string{"sh", "-c", "exit 7"}, Timeout: 10, Retries: 2},
	}}
	r := &Runner{Bucket: fb, Registry: registry.New(), Pipeline: "t1", Lifetime: 1, Sleep: noSleep}
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, fb.updated, 1)
	w := fb.updated[0]
	assert.Equal(t, work.StatusFailure, w.Status)
	assert.EqualValues(t, 7, w.Results["returncode"])
	assert.Equal(t, "", w.Results["stdout"])
}

func TestRunnerCommandTimeout(t *testing.T) {
	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Command: []string{"sleep", "10"}, Timeout: 1, Retries: 2},
	}}
	r := &Runner{Bucket: fb, Registry: registry.New(), Pipeline: "t1", Lifetime: 1, Sleep: noSleep}

	start := time.Now()
	require.NoError(t, r.Run(context.Background()))
	elapsed := time.Since(start)

	require.Len(t, fb.updated, 1)
	w := fb.updated[0]
	assert.Equal(t, work.StatusFailure, w.Status)
	assert.Contains(t, w.Results["error"], "timeout")
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
	assert.Less(t, elapsed, 6*time.Second)
}

func TestRunnerSkipsExecutionWhenAttemptExceedsRetries(t *testing.T) {
	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Function: "never.called", Retries: 0, Attempt: 1},
	}}
	reg := registry.New()
	r := &Runner{Bucket: fb, Registry: reg, Pipeline: "t1", Lifetime: 1, Sleep: noSleep}
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, fb.updated, 1)
	assert.Equal(t, work.StatusFailure, fb.updated[0].Status)
	assert.Contains(t, fb.updated[0].Results["error"], "attempt exceeds retries")
}

func TestRunnerStopsAfterLifetimeIterations(t *testing.T) {
	fb := &fakeBucket{pending: []*work.Work{
		{ID: "w1", Pipeline: "t1", Command: []string{"true"}, Timeout: 5},
		{ID: "w2", Pipeline: "t1", Command: []string{"true"}, Timeout: 5},
	}}
	r := &Runner{Bucket: fb, Registry: registry.New(), Pipeline: "t1", Lifetime: 1, Sleep: noSleep}
	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, fb.updated, 1)
}

func TestRunnerExitsGracefullyWhenContextCancelled(t *testing.T) {
	fb := &fakeBucket{}
	r := &Runner{Bucket: fb, Registry: registry.New(), Pipeline: "t1", Sleep: noSleep}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, fb.updated)
}
