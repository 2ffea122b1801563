package batch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/session"
)

// drainPending processes the snapshot of currently pending items through a
// bounded pool of maxWorkers goroutines.
//
// Design decision: We use errgroup.SetLimit rather than a hand-rolled worker
// pool because errgroup handles the concurrency bound and first-error
// propagation correctly. Each item gets its own goroutine, but only
// maxWorkers run simultaneously.
//
// Processor errors are converted into item failures and never returned to
// the group; an error from a worker means the orchestration itself broke
// (e.g., a persistence write failed) and fails the session.
//
// runCtx carries the cooperative stop signal and gates dispatch; procCtx is
// handed to the processor and is cancelled only when the whole invocation
// is aborted, so a stop request lets in-flight items finish.
func (m *Manager) drainPending(runCtx, procCtx context.Context, sess *session.Session, proc ItemProcessor, maxWorkers int) error {
	pending := sess.PendingItems()
	cfg := sess.Config()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(maxWorkers)

	for _, item := range pending {
		g.Go(func() error {
			// Cancellation is observed here, between item dispatches.
			// Untouched items stay PENDING for the next run.
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			// Pacing happens before the item is claimed, so a stop during
			// the wait leaves the item untouched.
			if err := m.limiter.Wait(gctx); err != nil {
				return nil
			}

			return m.processItem(gctx, procCtx, sess, proc, item, cfg)
		})
	}

	return g.Wait()
}

// processItem runs one item through the processor and records the outcome.
// Once an item is marked started its outcome is always recorded, even when
// the run is cancelled mid-flight, so persistence uses a shielded context.
// The processor call itself runs under procCtx: untouched by a cooperative
// stop, cancelled by a hard abort.
func (m *Manager) processItem(runCtx, procCtx context.Context, sess *session.Session, proc ItemProcessor, item *model.BatchItem, cfg model.SessionConfig) error {
	persistCtx := context.WithoutCancel(runCtx)

	if err := sess.MarkItemStarted(persistCtx, item.ID); err != nil {
		// The item may no longer be pending (e.g., a concurrent management
		// call touched it); skip rather than fail the session.
		if errors.Is(err, session.ErrItemNotPending) {
			return nil
		}
		return err
	}

	m.logger.Debug("processing item",
		"session_id", sess.ID(),
		"item_id", item.ID,
		"item", item.Name,
		"attempt", item.RetryCount+1,
	)

	result, procErr := proc.Process(procCtx, item.Name, cfg)
	if procErr != nil {
		m.limiter.RecordFailure()

		status, err := sess.MarkItemFailed(persistCtx, item.ID, procErr)
		if err != nil {
			return err
		}
		m.logger.Warn("item failed",
			"session_id", sess.ID(),
			"item", item.Name,
			"status", status,
			"error", procErr,
		)
		return nil
	}

	m.limiter.RecordSuccess()
	if err := sess.MarkItemCompleted(persistCtx, item.ID, result); err != nil {
		return err
	}

	m.logger.Debug("item completed",
		"session_id", sess.ID(),
		"item", item.Name,
	)
	return nil
}
