/*
processor.go - The drain loop: replays the queue against the backend

PURPOSE:
  Takes a priority-ordered snapshot of the queue and dispatches each item
  to the gateway registered for its entity kind. Applied and moot items
  are removed; transient failures stay queued with an incremented attempt
  count. Progress and counters flow through the Tracker so the app shell
  can poll aggregate status.

SINGLE-FLIGHT:
  Only one drain runs at a time. A second ProcessAll while one is in
  flight dispatches nothing and reports AlreadyRunning. Callers that need
  their item processed re-trigger after the current drain finishes.

SNAPSHOT SEMANTICS:
  The snapshot is taken once at the start of a pass. Items enqueued while
  the drain runs wait for the next trigger. Processing is serial; each
  remote call relies on the transport's own timeout, and ctx is checked
  between items so a shutdown does not strand the flag.

SEE ALSO:
  - queue.go: settlement primitives (Remove, MarkAttempt)
  - status.go: BeginSync/EndSync around the loop
  - errors.go: AlreadyApplied, the idempotent-convergence rule
*/
package syncer

import (
	"context"
	"log/slog"
)

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor drains the queue against the registered gateways.
type Processor struct {
	queue    *Queue
	tracker  *Tracker
	gateways Gateways
	logger   *slog.Logger
}

// NewProcessor wires a processor to its queue, tracker and per-kind
// gateways.
func NewProcessor(queue *Queue, tracker *Tracker, gateways Gateways, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		queue:    queue,
		tracker:  tracker,
		gateways: gateways,
		logger:   logger.With("component", "processor"),
	}
}

// Status returns the current aggregate sync status.
func (p *Processor) Status() Status {
	return p.tracker.Snapshot()
}

// ProcessAll runs one drain pass. It never returns ErrSyncInProgress;
// an overlapping call comes back with Result.AlreadyRunning set and no
// work done.
func (p *Processor) ProcessAll(ctx context.Context) (Result, error) {
	acquired, err := p.tracker.BeginSync(ctx)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		p.logger.DebugContext(ctx, "drain skipped: already running")
		return Result{AlreadyRunning: true}, nil
	}

	var res Result
	var firstErr string

	snapshot, err := p.queue.ListByPriority(ctx)
	if err != nil {
		p.tracker.EndSync(ctx, false, err.Error())
		return res, err
	}

	if len(snapshot) == 0 {
		if endErr := p.tracker.EndSync(ctx, false, ""); endErr != nil {
			return res, endErr
		}
		return res, nil
	}

	p.logger.InfoContext(ctx, "drain started", "items", len(snapshot))

	for i, item := range snapshot {
		if ctx.Err() != nil {
			firstErr = ctx.Err().Error()
			break
		}
		p.tracker.SetProgress(ctx, i*100/len(snapshot))

		res.Processed++
		if err := p.dispatch(ctx, item); err != nil {
			res.Failed++
			if firstErr == "" {
				firstErr = err.Error()
			}
			p.logger.WarnContext(ctx, "item failed",
				"op", item.Op, "kind", item.Kind, "entity_id", item.EntityID,
				"attempts", item.Attempts+1, "error", err)
			if markErr := p.queue.MarkAttempt(ctx, item.ID, err); markErr != nil {
				p.logger.ErrorContext(ctx, "mark attempt failed", "error", markErr)
			}
			continue
		}

		res.Succeeded++
		if remErr := p.queue.Remove(ctx, []string{item.ID}); remErr != nil {
			p.logger.ErrorContext(ctx, "settled item removal failed", "error", remErr)
		}
	}

	stats, statsErr := p.queue.Stats(ctx)
	if statsErr == nil {
		res.Remaining = stats.Pending
	}

	if err := p.tracker.EndSync(ctx, res.Succeeded > 0, firstErr); err != nil {
		return res, err
	}

	p.logger.InfoContext(ctx, "drain finished",
		"processed", res.Processed, "succeeded", res.Succeeded,
		"failed", res.Failed, "remaining", res.Remaining)
	return res, nil
}

// dispatch applies one item through its gateway. A nil return settles the
// item: either the remote accepted it, or the remote had already converged
// (duplicate create, vanished update/delete target).
func (p *Processor) dispatch(ctx context.Context, item QueueItem) error {
	gw, ok := p.gateways[item.Kind]
	if !ok {
		return &GatewayError{Op: item.Op, Kind: item.Kind, EntityID: item.EntityID, Err: ErrUnknownKind}
	}

	var err error
	switch item.Op {
	case OpCreate:
		_, err = gw.Create(ctx, item.Payload)
	case OpUpdate:
		_, err = gw.Update(ctx, item.EntityID, item.Payload)
	case OpDelete:
		err = gw.Delete(ctx, item.EntityID)
	default:
		return &GatewayError{Op: item.Op, Kind: item.Kind, EntityID: item.EntityID, Err: ErrUnknownKind}
	}

	if err == nil {
		return nil
	}
	if AlreadyApplied(item.Op, err) {
		p.logger.DebugContext(ctx, "item already applied remotely",
			"op", item.Op, "kind", item.Kind, "entity_id", item.EntityID)
		return nil
	}
	return err
}
