// Package deferred implements the Deferred Action Handler and its state
// machine: a pipeline that straddles two user turns. The first turn
// generates content and arms a single global waiter; the second is a
// mouse click anywhere on screen that triggers placement. The pending
// slot is owned exclusively by this package and mutated only through the
// keyed compare-and-swap helpers below, so a stale or duplicate click can
// never apply to the wrong generation.
package deferred

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/concurrency"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/postprocess"
	"github.com/normanking/aura-orchestrator/internal/types"
)

const (
	defaultReAcquireTimeout    = 15 * time.Second
	defaultTimeout             = 600 * time.Second
	defaultTimeoutMin          = 60 * time.Second
	defaultTimeoutMax          = 900 * time.Second
	defaultPasteThresholdChars = 1
)

// Handler implements handlers.Handler for DEFERRED_ACTION.
type Handler struct {
	Reasoning  collab.ReasoningClient
	Mouse      collab.MouseCapture
	Automation collab.Automation
	Lock       *concurrency.ExecutionLock
	Audio      *audio.Facade
	Clock      collab.Clock
	Logger     *slog.Logger

	ReAcquireTimeout    time.Duration
	Timeout             time.Duration
	TimeoutMin          time.Duration
	TimeoutMax          time.Duration
	PasteThresholdChars int

	mu      sync.Mutex
	state   types.DeferredState
	pending *types.DeferredPending
}

func (h *Handler) Supports(kind types.IntentKind) bool {
	return kind == types.DeferredActionIntent
}

// Handle runs Prepare (generation, never budgeted — long generations must
// not be cut short) followed by Arm (atomic publication of a new
// DeferredPending, preempting any action still WAITING) and returns
// WAITING_FOR_USER_ACTION so the Orchestrator releases the execution lock
// early.
func (h *Handler) Handle(ctx context.Context, u types.Utterance, intent types.Intent) types.HandlerResult {
	start := h.clock().Now()
	logger := h.logger().With("utterance_id", u.ID)

	contentType := contentTypeFromIntent(intent)
	prompt := buildGenerationPrompt(contentType, u.Text)

	raw, err := h.Reasoning.Complete(ctx, prompt, collab.ChatOptions{})
	if err != nil {
		logger.Warn("deferred: generation failed", "error", err)
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrReasoningUnavailable.Code).Inc()
		h.Audio.EnhancedError(ctx, "I couldn't generate that.", "deferred")
		return h.errorResult(u.ID, start, aurerrors.Wrap(aurerrors.ErrReasoningUnavailable, err))
	}
	if strings.TrimSpace(raw) == "" {
		logger.Warn("deferred: generation returned empty content")
		h.Audio.EnhancedError(ctx, "I couldn't generate that.", "deferred")
		return h.errorResult(u.ID, start, aurerrors.ErrContentGenerationEmpty)
	}

	cleaned := postprocess.Clean(raw, contentType)

	pending, err := h.arm(ctx, cleaned, contentType)
	if err != nil {
		logger.Warn("deferred: arming failed", "error", err)
		h.Audio.EnhancedError(ctx, "I couldn't arm that placement.", "deferred")
		return h.errorResult(u.ID, start, aurerrors.Wrap(aurerrors.ErrModuleUnavailable, err))
	}

	h.Audio.DeferredInstructions(ctx, string(contentType))
	metrics.DeferredLifecycleTotal.WithLabelValues("waiting").Inc()
	metrics.ActiveDeferred.Set(1)

	return types.HandlerResult{
		Status: types.StatusWaitingForUserAction, Method: types.MethodDeferred,
		Payload: pending.ID, CorrelationID: u.ID,
		Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

func (h *Handler) errorResult(utteranceID string, start time.Time, err error) types.HandlerResult {
	return types.HandlerResult{
		Status: types.StatusError, Method: types.MethodDeferred,
		Err: err, CorrelationID: utteranceID,
		Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

// arm publishes a new DeferredPending, preempting (with cancel audio) any
// action currently WAITING — the spec's open question on preempt-vs-reject
// is resolved in favor of preemption. It subscribes to a single global
// click and starts the background watcher that races the click against
// the timeout.
func (h *Handler) arm(ctx context.Context, content string, contentType types.ContentType) (*types.DeferredPending, error) {
	h.mu.Lock()
	if h.state == types.DeferredWaiting && h.pending != nil {
		old := h.pending
		h.mu.Unlock()
		h.Mouse.Cancel(old.MouseSubscriptionToken)
		h.Audio.EnhancedError(ctx, "Canceling the previous placement for a new one.", "deferred")
		h.mu.Lock()
	}
	h.state = types.DeferredPreparing
	h.mu.Unlock()

	id := uuid.NewString()
	timeout := h.clampTimeout(h.timeoutDefault())

	clickCh, err := h.Mouse.SubscribeSingleClick(ctx, id)
	if err != nil {
		h.mu.Lock()
		h.state = types.DeferredIdle
		h.mu.Unlock()
		return nil, fmt.Errorf("deferred: subscribing to click: %w", err)
	}

	now := h.clock().Now()
	pending := &types.DeferredPending{
		ID: id, Content: content, ContentType: contentType,
		PreparedAt: now, TimeoutAt: now.Add(timeout),
		MouseSubscriptionToken: id,
	}

	h.mu.Lock()
	h.pending = pending
	h.state = types.DeferredWaiting
	h.mu.Unlock()

	go h.watch(pending, clickCh, timeout)

	return pending, nil
}

// watch races the click channel against a timeout timer. It detaches from
// the request context deliberately: the deferred action must survive past
// the HandlerResult already returned to the Orchestrator for this turn.
func (h *Handler) watch(pending *types.DeferredPending, clickCh <-chan types.Rect, timeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			h.logger().Error("deferred: watcher panicked, forcing cleanup", "panic", r, "pending_id", pending.ID)
			h.finish(types.DeferredFailed)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case point, ok := <-clickCh:
		if !ok {
			return
		}
		h.onClick(context.Background(), pending, point)
	case <-timer.C:
		h.onTimeout(context.Background(), pending)
	}
}

// onClick performs the keyed CAS WAITING→EXECUTING; a failed CAS means the
// click is a duplicate or stale (the pending was already preempted,
// completed, or timed out) and is silently dropped.
func (h *Handler) onClick(ctx context.Context, pending *types.DeferredPending, point types.Rect) {
	if !h.cas(types.DeferredWaiting, types.DeferredExecuting, pending.ID) {
		return
	}

	guard, ok := concurrency.ReAcquire(ctx, h.Lock, h.reAcquireTimeout())
	if !ok {
		h.Audio.EnhancedError(ctx, "I couldn't complete the placement in time.", "deferred")
		h.finish(types.DeferredFailed)
		metrics.DeferredLifecycleTotal.WithLabelValues("lock_timeout").Inc()
		metrics.ActiveDeferred.Set(0)
		return
	}
	defer guard.Release()
	defer func() {
		h.finish(types.DeferredIdle)
		metrics.ActiveDeferred.Set(0)
	}()

	if err := h.Automation.Click(ctx, point, "left", 1); err != nil {
		h.logger().Warn("deferred: focus click failed", "error", err, "pending_id", pending.ID)
		h.Audio.DeferredCompletion(ctx, false, string(pending.ContentType))
		metrics.DeferredLifecycleTotal.WithLabelValues("placement_failed").Inc()
		return
	}

	if err := h.place(ctx, pending.Content); err != nil {
		h.logger().Warn("deferred: placement failed", "error", err, "pending_id", pending.ID)
		h.Audio.DeferredCompletion(ctx, false, string(pending.ContentType))
		metrics.DeferredLifecycleTotal.WithLabelValues("placement_failed").Inc()
		return
	}

	h.Audio.DeferredCompletion(ctx, true, string(pending.ContentType))
	metrics.DeferredLifecycleTotal.WithLabelValues("placed").Inc()
}

// place dispatches content via direct typing for short single-line content
// or the clipboard-paste primitive otherwise; per §6, the call must not
// impose an artificial per-operation timeout beyond ctx.
func (h *Handler) place(ctx context.Context, content string) error {
	if strings.Contains(content, "\n") || len(content) > h.pasteThreshold() {
		return h.Automation.Paste(ctx, content)
	}
	return h.Automation.Type(ctx, content)
}

// onTimeout performs the keyed CAS WAITING→FAILED; a failed CAS means a
// click already won the race.
func (h *Handler) onTimeout(ctx context.Context, pending *types.DeferredPending) {
	if !h.cas(types.DeferredWaiting, types.DeferredFailed, pending.ID) {
		return
	}
	h.Mouse.Cancel(pending.MouseSubscriptionToken)
	h.Audio.DeferredTimeout(ctx, h.clock().Now().Sub(pending.PreparedAt).String())
	h.finish(types.DeferredIdle)
	metrics.DeferredLifecycleTotal.WithLabelValues("timed_out").Inc()
	metrics.ActiveDeferred.Set(0)
}

// cas performs a keyed compare-and-swap: it succeeds only if the current
// state matches from AND the current pending's ID matches id.
func (h *Handler) cas(from, to types.DeferredState, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != from {
		return false
	}
	if h.pending == nil || h.pending.ID != id {
		return false
	}
	h.state = to
	return true
}

// finish clears the pending slot and sets the terminal state. Calling it
// while already IDLE is a no-op by construction: nothing reads h.pending
// after it is cleared.
func (h *Handler) finish(state types.DeferredState) {
	h.mu.Lock()
	h.pending = nil
	h.state = state
	h.mu.Unlock()
}

func contentTypeFromIntent(intent types.Intent) types.ContentType {
	raw, _ := intent.Parameters["content_type"].(string)
	switch strings.ToUpper(raw) {
	case string(types.ContentCode):
		return types.ContentCode
	case string(types.ContentText):
		return types.ContentText
	default:
		return types.ContentOther
	}
}

func buildGenerationPrompt(contentType types.ContentType, text string) string {
	switch contentType {
	case types.ContentCode:
		return fmt.Sprintf("Write only the code requested, no explanation or markdown fences: %s", text)
	default:
		return fmt.Sprintf("Write the content requested, ready to be placed verbatim: %s", text)
	}
}

func (h *Handler) clock() collab.Clock {
	if h.Clock != nil {
		return h.Clock
	}
	return collab.SystemClock{}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) reAcquireTimeout() time.Duration {
	if h.ReAcquireTimeout > 0 {
		return h.ReAcquireTimeout
	}
	return defaultReAcquireTimeout
}

func (h *Handler) timeoutDefault() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return defaultTimeout
}

func (h *Handler) pasteThreshold() int {
	if h.PasteThresholdChars > 0 {
		return h.PasteThresholdChars
	}
	return defaultPasteThresholdChars
}

// clampTimeout clamps d to [TimeoutMin, TimeoutMax], defaulting the bounds
// themselves when unset.
func (h *Handler) clampTimeout(d time.Duration) time.Duration {
	min := h.TimeoutMin
	if min <= 0 {
		min = defaultTimeoutMin
	}
	max := h.TimeoutMax
	if max <= 0 {
		max = defaultTimeoutMax
	}
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
