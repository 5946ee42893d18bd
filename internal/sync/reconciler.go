package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"customer-cqrs-service/internal/logger"
	"customer-cqrs-service/internal/store"
)

const SyncTypeUserWriteToRead = "USER_WRITE_TO_READ"

// ReconciliationError is caught by the scheduler and recorded in the ledger;
// it never escapes the background task.
type ReconciliationError struct {
	Stage string
	Err   error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed at %s: %v", e.Stage, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Reconciler moves the read store toward agreement with the write store. A
// run either completes (SUCCESS, watermark advances to the run's own start
// time) or errors (FAILED, watermark frozen so the next run retries the same
// rows). Upserts are idempotent, so retries and a doubled scheduler cannot
// corrupt the read store. The watermark is read from the ledger on every run;
// no state is held between runs.
type Reconciler struct {
	writes store.WriteStore
	reads  store.ReadStore
	ledger store.SyncLedger
	now    func() time.Time
}

func NewReconciler(writes store.WriteStore, reads store.ReadStore, ledger store.SyncLedger) *Reconciler {
	return &Reconciler{
		writes: writes,
		reads:  reads,
		ledger: ledger,
		now:    time.Now,
	}
}

type RunResult struct {
	SyncID    string
	Processed int64
	Watermark time.Time
}

func (r *Reconciler) Run(ctx context.Context) (*RunResult, error) {
	watermark, err := r.ledger.LastWatermark(ctx, SyncTypeUserWriteToRead)
	if err != nil {
		return nil, &ReconciliationError{Stage: "read watermark", Err: err}
	}

	// The run's own start time becomes the next watermark on success. Using
	// completion time instead would drop rows written mid-run.
	startedAt := r.now()

	syncID, err := r.ledger.StartRun(ctx, SyncTypeUserWriteToRead, startedAt)
	if err != nil {
		return nil, &ReconciliationError{Stage: "start ledger entry", Err: err}
	}

	logger.Log.Info("Reconciliation started",
		zap.String("syncId", syncID),
		zap.Time("watermark", watermark),
	)

	customers, err := r.writes.ChangedSince(ctx, watermark)
	if err != nil {
		return nil, r.fail(ctx, syncID, 0, &ReconciliationError{Stage: "query changed rows", Err: err})
	}

	var processed int64
	for _, c := range customers {
		if err := r.reads.Upsert(ctx, c.View(startedAt)); err != nil {
			return nil, r.fail(ctx, syncID, processed, &ReconciliationError{
				Stage: fmt.Sprintf("upsert customer %d", c.UserID),
				Err:   err,
			})
		}
		processed++
	}

	finishCtx, cancel := finalizationContext(ctx)
	defer cancel()
	if err := r.ledger.FinishRun(finishCtx, syncID, store.SyncSuccess, processed, startedAt, ""); err != nil {
		// The watermark did not advance; the next run reprocesses this batch.
		return nil, &ReconciliationError{Stage: "finalize ledger entry", Err: err}
	}

	logger.Log.Info("Reconciliation completed",
		zap.String("syncId", syncID),
		zap.Int64("records", processed),
	)

	return &RunResult{
		SyncID:    syncID,
		Processed: processed,
		Watermark: startedAt,
	}, nil
}

// fail finalizes the ledger entry as FAILED with a frozen watermark.
func (r *Reconciler) fail(ctx context.Context, syncID string, processed int64, runErr *ReconciliationError) error {
	finishCtx, cancel := finalizationContext(ctx)
	defer cancel()
	if err := r.ledger.FinishRun(finishCtx, syncID, store.SyncFailed, processed, time.Time{}, runErr.Error()); err != nil {
		logger.Log.Error("Failed to record FAILED sync run",
			zap.String("syncId", syncID),
			zap.Error(err),
		)
	}
	return runErr
}

// finalizationContext detaches ledger finalization from the run's context.
// A cancelled trigger request must not strand the entry IN_PROGRESS: the
// ledger row has to be finalized even when the cancellation itself is what
// failed the run.
func finalizationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
