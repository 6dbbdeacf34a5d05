package memqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestDepositAssignsIDsAndQueuedStatus(t *testing.T) {
	q := openTest(t)
	ids, err := q.Deposit(context.Background(), []*work.Work{
		{Pipeline: "demo", Priority: 3, Creation: 1},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestWithdrawReturnsNilWhenEmpty(t *testing.T) {
	q := openTest(t)
	got, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWithdrawPrefersHigherPriorityThenOlderCreation(t *testing.T) {
	q := openTest(t)
	_, err := q.Deposit(context.Background(), []*work.Work{
		{ID: "low", Pipeline: "demo", Priority: 1, Creation: 1},
		{ID: "high-newer", Pipeline: "demo", Priority: 5, Creation: 2},
		{ID: "high-older", Pipeline: "demo", Priority: 5, Creation: 1},
	})
	require.NoError(t, err)

	got, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "high-older", got.ID)
	assert.Equal(t, work.StatusRunning, got.Status)
	assert.Equal(t, 1, got.Attempt)
}

func TestWithdrawIsAtomicAcrossConcurrentCallers(t *testing.T) {
	q := openTest(t)
	_, err := q.Deposit(context.Background(), []*work.Work{{ID: "only", Pipeline: "demo", Priority: 3, Creation: 1}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*work.Work, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, _ := q.Withdraw(context.Background(), "demo", bucket.Filter{})
			results[i] = w
		}(i)
	}
	wg.Wait()

	count := 0
	for _, r := range results {
		if r != nil {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestUpdateFailsForUnknownID(t *testing.T) {
	q := openTest(t)
	err := q.Update(context.Background(), &work.Work{ID: "missing"})
	assert.Error(t, err)
}

func TestDeleteRemovesRows(t *testing.T) {
	q := openTest(t)
	ids, err := q.Deposit(context.Background(), []*work.Work{{Pipeline: "demo", Priority: 1, Creation: 1}})
	require.NoError(t, err)

	require.NoError(t, q.Delete(context.Background(), ids))

	got, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListByIDsReturnsOnlyMatchingIDsRegardlessOfStatus(t *testing.T) {
	q := openTest(t)
	ids, err := q.Deposit(context.Background(), []*work.Work{
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 1},
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 2},
	})
	require.NoError(t, err)

	items, err := q.ListByIDs(context.Background(), []string{ids[0], "missing-id"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ids[0], items[0].ID)
}

func TestListByIDsNoopsOnEmptyIDs(t *testing.T) {
	q := openTest(t)
	items, err := q.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestListTerminalFiltersByStatusSiteAndPipeline(t *testing.T) {
	q := openTest(t)
	ids, err := q.Deposit(context.Background(), []*work.Work{
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 1},
	})
	require.NoError(t, err)

	w, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
	require.NoError(t, err)
	require.NotNil(t, w)
	w.Status = work.StatusSuccess
	require.NoError(t, q.Update(context.Background(), w))

	items, err := q.ListTerminal(context.Background(), "demo", "site-a", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ids[0], items[0].ID)
}

func TestListTerminalZeroLimitIsUnbounded(t *testing.T) {
	q := openTest(t)
	_, err := q.Deposit(context.Background(), []*work.Work{
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 1},
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 2},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
		require.NoError(t, err)
		require.NotNil(t, w)
		w.Status = work.StatusSuccess
		require.NoError(t, q.Update(context.Background(), w))
	}

	items, err := q.ListTerminal(context.Background(), "demo", "site-a", 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestListActiveReturnsOnlyQueuedAndRunning(t *testing.T) {
	q := openTest(t)
	_, err := q.Deposit(context.Background(), []*work.Work{
		{Pipeline: "demo", Site: "site-a", Priority: 1, Creation: 1},
	})
	require.NoError(t, err)

	running, err := q.Withdraw(context.Background(), "demo", bucket.Filter{})
	require.NoError(t, err)
	require.NotNil(t, running)

	items, err := q.ListActive(context.Background(), "demo", "site-a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, work.StatusRunning, items[0].Status)

	running.Status = work.StatusFailure
	require.NoError(t, q.Update(context.Background(), running))

	items, err = q.ListActive(context.Background(), "demo", "site-a")
	require.NoError(t, err)
	assert.Len(t, items, 0)
}
