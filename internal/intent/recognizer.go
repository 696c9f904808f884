// Package intent implements the Intent Recognizer: it sends the raw
// utterance to the reasoning collaborator, validates and clamps the
// result, and applies the confidence-threshold safe default that routes
// low-confidence or unavailable-reasoning commands to the GUI handler
// rather than aborting the command outright. Lenient parsing of the
// reasoning collaborator's reply happens at the wire boundary, in
// collab/envelope, before it ever reaches this package.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/collab/envelope"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// knownKinds are the four enum values the reasoning collaborator may
// legally return.
var knownKinds = map[types.IntentKind]bool{
	types.GUIInteraction:       true,
	types.QuestionAnswering:    true,
	types.ConversationalChat:   true,
	types.DeferredActionIntent: true,
}

// IntentLock is a one-slot mutual-exclusion gate on intent recognition,
// independent of the Concurrency Controller's execution lock (see
// internal/concurrency for lock-ordering discipline between the two).
type IntentLock struct {
	ch chan struct{}
}

// NewIntentLock returns a ready-to-use, initially-unlocked IntentLock.
func NewIntentLock() *IntentLock {
	l := &IntentLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// TryAcquire blocks until the lock is free or timeout elapses.
func (l *IntentLock) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release returns the lock to the free state. Calling Release without a
// held lock panics, mirroring sync.Mutex's contract.
func (l *IntentLock) Release() {
	select {
	case l.ch <- struct{}{}:
	default:
		panic("intent: Release called without a held lock")
	}
}

// Recognizer classifies an utterance into an Intent.
type Recognizer struct {
	Reasoning           collab.ReasoningClient
	Lock                *IntentLock
	Logger              *slog.Logger
	IntentLockTimeout   time.Duration
	ConfidenceThreshold float64
}

const fallbackPrompt = `Classify the user's command into exactly one of: GUI_INTERACTION, QUESTION_ANSWERING, CONVERSATIONAL_CHAT, DEFERRED_ACTION.
Reply with a single JSON object: {"intent": "...", "confidence": 0.0-1.0, "parameters": {...}, "reasoning": "..."}.
Command: %s`

// guiFallback is the safe-default Intent returned whenever recognition
// cannot run to completion: reasoning unavailable, lock timeout, parse
// failure, unknown label, or below-threshold confidence.
func guiFallback(reason string) types.Intent {
	return types.Intent{
		Kind:       types.GUIInteraction,
		Confidence: 0.0,
		Fallback:   true,
		Reason:     reason,
	}
}

// Recognize implements the full algorithm: unavailability guard, lock
// acquisition, classification, validation/clamping, and threshold
// gating. The reasoning collaborator's concrete Classify implementation
// is responsible for tolerating a reply wrapped in prose or markdown
// fencing (see collab/envelope.DecodeLenient); a decode failure there is
// reported back wrapped in envelope.ErrDecodeFailed so it can be told
// apart from reasoning being unreachable altogether.
func (r *Recognizer) Recognize(ctx context.Context, u types.Utterance) types.Intent {
	if r.Reasoning.Classify == nil {
		return guiFallback("reasoning_unavailable")
	}

	lockStart := time.Now()
	if !r.Lock.TryAcquire(ctx, r.IntentLockTimeout) {
		metrics.IntentLockWait.WithLabelValues("timeout").Observe(time.Since(lockStart).Seconds())
		r.log().Warn("intent lock timeout", "utterance_id", u.ID)
		return guiFallback("intent_lock_timeout")
	}
	metrics.IntentLockWait.WithLabelValues("acquired").Observe(time.Since(lockStart).Seconds())
	defer r.Lock.Release()

	intentReply, err := r.Reasoning.Classify(ctx, u.Text)
	if err != nil {
		if errors.Is(err, envelope.ErrDecodeFailed) {
			r.log().Warn("intent reply did not parse as JSON", "utterance_id", u.ID, "error", err)
			return guiFallback("parse_failed")
		}
		r.log().Warn("intent classification failed", "utterance_id", u.ID, "error", err)
		return guiFallback("reasoning_unavailable")
	}

	kind := types.IntentKind(strings.ToUpper(strings.TrimSpace(string(intentReply.Kind))))
	if !knownKinds[kind] {
		r.log().Warn("intent reply used an unknown label", "utterance_id", u.ID, "label", intentReply.Kind)
		return guiFallback("unknown_label")
	}

	confidence := clamp01(intentReply.Confidence)
	if confidence < r.ConfidenceThreshold {
		return types.Intent{
			Kind:       types.GUIInteraction,
			Confidence: confidence,
			Parameters: intentReply.Parameters,
			Fallback:   true,
			Reason:     "low_confidence",
		}
	}

	return types.Intent{
		Kind:       kind,
		Confidence: confidence,
		Parameters: intentReply.Parameters,
	}
}

func (r *Recognizer) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
