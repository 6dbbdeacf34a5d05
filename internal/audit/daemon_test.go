package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitefed/labwork/internal/pipeline"
	"github.com/sitefed/labwork/internal/work"
)

type fakeBucket struct {
	active   []*work.Work
	terminal []*work.Work
	updated  []*work.Work
}

func (b *fakeBucket) ListActive(ctx context.Context, p, site string) ([]*work.Work, error) {
	return b.active, nil
}

func (b *fakeBucket) ListTerminal(ctx context.Context, p, site string, limit int) ([]*work.Work, error) {
	return b.terminal, nil
}

func (b *fakeBucket) Update(ctx context.Context, w *work.Work) error {
	b.updated = append(b.updated, w)
	return nil
}

type fakeConfigs struct {
	configs map[string]*pipeline.Configuration
}

func (c *fakeConfigs) Lookup(name string) (*pipeline.Configuration, bool) {
	cfg, ok := c.configs[name]
	return cfg, ok
}

func fixedNow(t float64) func() float64 {
	return func() float64 { return t }
}

func TestRunOnceExpiresTimedOutRunningWork(t *testing.T) {
	bucket := &fakeBucket{active: []*work.Work{{
		ID: "w1", Pipeline: "demo", Status: work.StatusRunning,
		Start: 0, Timeout: 60,
	}}}
	bucket.active[0].Start = 1000

	d := &Daemon{Bucket: bucket, Buffer: time.Minute, Now: fixedNow(1000 + 60 + 120)}
	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, ClassificationExpired, res.Findings[0].Classification)

	require.Len(t, bucket.updated, 1)
	assert.Equal(t, work.StatusFailure, bucket.updated[0].Status)
	assert.Equal(t, "expired", bucket.updated[0].Results["reason"])
	assert.Equal(t, 1, bucket.updated[0].Attempt)
}

func TestRunOnceLeavesWorkWithinBufferAlone(t *testing.T) {
	bucket := &fakeBucket{active: []*work.Work{{
		ID: "w1", Pipeline: "demo", Status: work.StatusRunning, Start: 1000, Timeout: 60,
	}}}

	d := &Daemon{Bucket: bucket, Buffer: time.Minute, Now: fixedNow(1000 + 60 + 5)}
	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Empty(t, bucket.updated)
}

func TestRunOnceFlagsStaleFailureWithoutDeleting(t *testing.T) {
	bucket := &fakeBucket{terminal: []*work.Work{{
		ID: "w1", Pipeline: "demo", Status: work.StatusFailure, Stop: 1000,
	}}}

	d := &Daemon{Bucket: bucket, Buffer: time.Minute, Now: fixedNow(1000 + 3600)}
	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, ClassificationStaleFailure, res.Findings[0].Classification)
	assert.False(t, res.Findings[0].Mutated)
	assert.Empty(t, bucket.updated)
}

func TestRunOnceCancelsOrphanedStep(t *testing.T) {
	bucket := &fakeBucket{active: []*work.Work{{
		ID: "w1", Pipeline: "demo", Status: work.StatusRunning, Group: []string{"removed-step"},
	}}}
	configs := &fakeConfigs{configs: map[string]*pipeline.Configuration{
		"demo": {Pipeline: map[string]*pipeline.Step{"current-step": {Stage: 1}}},
	}}

	d := &Daemon{Bucket: bucket, Configs: configs, Now: fixedNow(0)}
	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, ClassificationOrphan, res.Findings[0].Classification)
	require.Len(t, bucket.updated, 1)
	assert.Equal(t, work.StatusCancelled, bucket.updated[0].Status)
}

func TestRunOnceIgnoresActiveStepStillInConfiguration(t *testing.T) {
	bucket := &fakeBucket{active: []*work.Work{{
		ID: "w1", Pipeline: "demo", Status: work.StatusRunning, Group: []string{"current-step"}, Start: 0,
	}}}
	configs := &fakeConfigs{configs: map[string]*pipeline.Configuration{
		"demo": {Pipeline: map[string]*pipeline.Step{"current-step": {Stage: 1}}},
	}}

	d := &Daemon{Bucket: bucket, Configs: configs, Now: fixedNow(0)}
	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
}

func TestRunExitsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	d := &Daemon{Bucket: &fakeBucket{}, Interval: 10 * time.Millisecond}
	err := d.Run(ctx)
	assert.NoError(t, err)
}
