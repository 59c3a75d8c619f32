package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
	"github.com/poiesic/indexd/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) storage.HistoryRepository {
	t.Helper()
	_, history, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return history
}

func newTestInvoker(maxAttempts int) (*Invoker, *FakeClock) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := NewConfig(
		WithMaxRetryAttempts(maxAttempts),
		WithRetryBaseDelay(10*time.Millisecond),
		WithRetryMaxDelay(100*time.Millisecond),
	)
	return NewInvoker(nil, NewRetryPolicy(cfg), clock), clock
}

func loadTestJournal(t *testing.T, history storage.HistoryRepository, clock Clock, instance core.ID) *journal {
	t.Helper()
	j, err := loadJournal(context.Background(), history, clock, instance)
	require.NoError(t, err)
	return j
}

func TestInvoker_SuccessIsJournaledOnce(t *testing.T) {
	history := newTestHistory(t)
	inv, clock := newTestInvoker(5)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("result"), nil
	}

	j := loadTestJournal(t, history, clock, 1)
	payload, err := inv.invoke(ctx, j, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), payload)
	assert.Equal(t, 1, calls)

	// A replayed invocation returns the journaled result without
	// executing the activity again.
	replayed := loadTestJournal(t, history, clock, 1)
	payload, err = inv.invoke(ctx, replayed, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), payload)
	assert.Equal(t, 1, calls, "completed call must not re-execute")
}

func TestInvoker_TransientRetriesThenSucceeds(t *testing.T) {
	history := newTestHistory(t)
	inv, clock := newTestInvoker(5)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, core.Transient(errors.New("throttled"))
		}
		return []byte("ok"), nil
	}

	j := loadTestJournal(t, history, clock, 2)
	payload, err := inv.invoke(ctx, j, 1, core.ActivityEmbed, core.StageEmbedding, fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), payload)
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.Sleeps(), 2, "each retried attempt backs off once")

	events, err := history.Events(ctx, 2)
	require.NoError(t, err)
	attempts := 0
	completed := 0
	for _, event := range events {
		switch event.Kind {
		case core.EventActivityAttempt:
			attempts++
		case core.EventActivityCompleted:
			completed++
			assert.Equal(t, 3, event.Attempt)
		}
	}
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, completed)
}

func TestInvoker_ExhaustionBecomesPermanent(t *testing.T) {
	history := newTestHistory(t)
	inv, _ := newTestInvoker(3)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return nil, core.Transient(errors.New("still down"))
	}

	clock := NewFakeClock(time.Now())
	j := loadTestJournal(t, history, clock, 3)
	_, err := inv.invoke(ctx, j, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.Error(t, err)
	assert.Equal(t, 3, calls, "attempt budget includes the first attempt")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, core.IsPermanent(err), "exhausted transient failures become permanent")

	events, err := history.Events(ctx, 3)
	require.NoError(t, err)
	var terminal *core.HistoryEvent
	for _, event := range events {
		if event.Kind == core.EventActivityFailed {
			terminal = event
		}
	}
	require.NotNil(t, terminal)
	assert.Equal(t, 3, terminal.Attempt)
}

func TestInvoker_PermanentFailsWithoutRetry(t *testing.T) {
	history := newTestHistory(t)
	inv, clock := newTestInvoker(5)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return nil, core.Permanent(errors.New("unsupported format"))
	}

	j := loadTestJournal(t, history, clock, 4)
	_, err := inv.invoke(ctx, j, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestInvoker_ReplayedFailureStaysFailed(t *testing.T) {
	history := newTestHistory(t)
	inv, clock := newTestInvoker(2)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return nil, core.Transient(errors.New("down"))
	}

	j := loadTestJournal(t, history, clock, 5)
	_, err := inv.invoke(ctx, j, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.Error(t, err)
	failedCalls := calls

	replayed := loadTestJournal(t, history, clock, 5)
	_, err = inv.invoke(ctx, replayed, 1, core.ActivityExtract, core.StageExtracting, fn)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, failedCalls, calls, "journaled failure must not re-execute")
}

func TestInvoker_ResumeContinuesAttemptCount(t *testing.T) {
	history := newTestHistory(t)
	inv, clock := newTestInvoker(5)
	ctx := context.Background()

	// First run burns two attempts, then the context is cancelled during
	// the third, leaving no terminal outcome.
	calls := 0
	runCtx, cancel := context.WithCancel(ctx)
	fn := func(context.Context) ([]byte, error) {
		calls++
		if calls == 3 {
			cancel()
			return nil, context.Canceled
		}
		return nil, core.Transient(errors.New("flaky"))
	}

	j := loadTestJournal(t, history, clock, 6)
	_, err := inv.invoke(runCtx, j, 1, core.ActivityEmbed, core.StageEmbedding, fn)
	require.ErrorIs(t, err, context.Canceled)

	// The resumed run picks up after the journaled attempts instead of
	// restarting the budget.
	resumed := loadTestJournal(t, history, clock, 6)
	assert.Equal(t, 2, resumed.lastAttempt(1))
}
