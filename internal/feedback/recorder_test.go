package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/testutil"
)

var fastRetry = common.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// busyBeginner fails every BeginTx with a retryable error.
type busyBeginner struct {
	calls int
}

func (b *busyBeginner) BeginTx(context.Context) (service.Transaction, error) {
	b.calls++
	return nil, &common.RetryableError{Err: errors.New("database is locked"), Retryable: true}
}

// failingTx fails counter writes so the savepoint path is exercised.
type failingTx struct {
	service.Transaction
}

func (f failingTx) IncrementFeedback(context.Context, string, string, int, int) error {
	return errors.New("disk I/O error")
}

func TestRecorder_Record(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := NewRecorder(db.Storage, fastRetry, nil)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept}))
	assert.Equal(t, 1, db.MustFeedback("shell", "Fuel").AcceptCount)

	err := r.Record(ctx, Event{Merchant: "", Category: "Fuel", Action: model.FeedbackAccept})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRecorder_RecordDropsAfterRetries(t *testing.T) {
	busy := &busyBeginner{}
	r := NewRecorder(busy, fastRetry, nil)

	err := r.Record(context.Background(), Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackReject})
	require.NoError(t, err, "exhausted retries drop the event")
	assert.Equal(t, fastRetry.MaxAttempts, busy.calls)
}

func TestRecorder_RecordInTx(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := NewRecorder(db.Storage, fastRetry, nil)
	ctx := context.Background()

	tx, err := db.Storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddSuggestionIgnore(ctx, "shell", "Fuel"))
	r.RecordInTx(ctx, tx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept, Weight: 2})
	require.NoError(t, tx.Commit())

	assert.Equal(t, 2, db.MustFeedback("shell", "Fuel").AcceptCount)
}

func TestRecorder_RecordInTxSwallowsFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := NewRecorder(db.Storage, fastRetry, nil)
	ctx := context.Background()

	tx, err := db.Storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddSuggestionIgnore(ctx, "shell", "Fuel"))
	r.RecordInTx(ctx, failingTx{Transaction: tx}, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept})
	require.NoError(t, tx.Commit())

	ignores, err := db.Storage.ListSuggestionIgnores(ctx)
	require.NoError(t, err)
	assert.Len(t, ignores, 1, "primary change still commits")

	events, err := db.Storage.GetFeedbackEvents(ctx, "shell", "Fuel")
	require.NoError(t, err)
	assert.Empty(t, events, "partial feedback is rolled back to the savepoint")
}

func TestRecorder_RecordConcurrentAccepts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := NewRecorder(db.Storage, fastRetry, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Record(ctx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, n, db.MustFeedback("shell", "Fuel").AcceptCount)
}

func TestRecorder_RecordConcurrentUndo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	r := NewRecorder(db.Storage, fastRetry, nil)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept}))

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n+1)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Record(ctx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- r.Record(ctx, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackUndo})
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stat := db.MustFeedback("shell", "Fuel")
	assert.Equal(t, n, stat.AcceptCount)

	accept, reject, err := db.Storage.SumFeedbackEvents(ctx, "shell", "Fuel")
	require.NoError(t, err)
	assert.Equal(t, stat.AcceptCount, accept, "counters match the event log")
	assert.Equal(t, stat.RejectCount, reject)
}
