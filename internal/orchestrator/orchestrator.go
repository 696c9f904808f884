// Package orchestrator implements the AURA Orchestrator Core's single
// public entry point, execute(utterance): acquire the execution lock,
// recognize intent, select a handler from the registry, run it, release
// the lock (early if the handler is waiting on a user click), and record
// the outcome to the audit ledger.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/concurrency"
	"github.com/normanking/aura-orchestrator/internal/handlers"
	"github.com/normanking/aura-orchestrator/internal/intent"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/store"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// Ledger is the subset of store.Ledger the Orchestrator depends on, kept
// narrow so recording is optional and testable without SQLite.
type Ledger interface {
	Record(ctx context.Context, e store.LedgerEntry) error
}

// Orchestrator owns the execution lock, the handler registry, and wires
// intent recognition to handler dispatch. It holds no per-invocation
// state of its own; that belongs to the handlers.
type Orchestrator struct {
	Recognizer *intent.Recognizer
	Registry   *handlers.Registry
	Lock       *concurrency.ExecutionLock
	Ledger     Ledger
	Logger     *slog.Logger

	ExecutionLockTimeout time.Duration
}

// Execute is the core's single public entry point. It is safe to call
// concurrently from any number of goroutines; internal routing is
// serialized by the execution lock except while a deferred action is
// WAITING, per the early-release contract.
func (o *Orchestrator) Execute(ctx context.Context, u types.Utterance) types.HandlerResult {
	logger := o.logger().With("utterance_id", u.ID)

	lockStart := time.Now()
	guard, ok := concurrency.Acquire(ctx, o.Lock, o.lockTimeout())
	if !ok {
		logger.Warn("orchestrator: execution lock timeout")
		metrics.ExecutionLockWait.WithLabelValues("timeout").Observe(time.Since(lockStart).Seconds())
		res := types.HandlerResult{
			Status: types.StatusError, CorrelationID: u.ID,
			Err: aurerrors.ErrLockTimeout,
		}
		o.record(ctx, u, types.Intent{}, res)
		return res
	}
	defer guard.Release()
	metrics.ExecutionLockWait.WithLabelValues("acquired").Observe(time.Since(lockStart).Seconds())

	intentStart := time.Now()
	recognized := o.Recognizer.Recognize(ctx, u)
	metrics.IntentRecognitionDuration.WithLabelValues(string(recognized.Kind), boolLabel(recognized.Fallback)).
		Observe(time.Since(intentStart).Seconds())
	if recognized.Fallback {
		metrics.IntentFallbackTotal.WithLabelValues(recognized.Reason).Inc()
	}

	handler, err := o.Registry.Select(recognized.Kind)
	if err != nil {
		logger.Error("orchestrator: no handler registered", "kind", recognized.Kind, "error", err)
		metrics.ErrorsTotal.WithLabelValues(aurerrors.Code(err)).Inc()
		res := types.HandlerResult{Status: types.StatusError, CorrelationID: u.ID, Err: err}
		o.record(ctx, u, recognized, res)
		return res
	}

	result := handler.Handle(ctx, u, recognized)

	if result.Status == types.StatusWaitingForUserAction {
		// The handler has armed a deferred action and owns its own
		// completion path; release the execution lock now so a second
		// command may proceed concurrently with the wait.
		guard.ReleaseEarly()
	}

	if result.Err != nil {
		metrics.ErrorsTotal.WithLabelValues(aurerrors.Code(result.Err)).Inc()
	}

	o.record(ctx, u, recognized, result)
	return result
}

func (o *Orchestrator) record(ctx context.Context, u types.Utterance, intent types.Intent, result types.HandlerResult) {
	if o.Ledger == nil {
		return
	}
	entry := store.LedgerEntry{
		UtteranceID: u.ID,
		IntentKind:  string(intent.Kind),
		Status:      string(result.Status),
		Method:      string(result.Method),
		ErrorCode:   aurerrors.Code(result.Err),
		Parameters:  intent.Parameters,
		CreatedAt:   u.ReceivedAt,
	}
	if err := o.Ledger.Record(ctx, entry); err != nil {
		o.logger().Warn("orchestrator: ledger record failed", "error", err, "utterance_id", u.ID)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) lockTimeout() time.Duration {
	if o.ExecutionLockTimeout > 0 {
		return o.ExecutionLockTimeout
	}
	return 30 * time.Second
}
