package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/collab/envelope"
	"github.com/normanking/aura-orchestrator/internal/types"
)

func newRecognizer(classify func(ctx context.Context, text string) (types.Intent, error)) *Recognizer {
	return &Recognizer{
		Reasoning:           collab.ReasoningClient{Classify: classify},
		Lock:                NewIntentLock(),
		IntentLockTimeout:   time.Second,
		ConfidenceThreshold: 0.7,
	}
}

func TestRecognize_ReasoningUnavailable(t *testing.T) {
	t.Parallel()

	r := &Recognizer{
		Reasoning:           collab.ReasoningClient{},
		Lock:                NewIntentLock(),
		IntentLockTimeout:   time.Second,
		ConfidenceThreshold: 0.7,
	}

	got := r.Recognize(context.Background(), types.NewUtterance("open settings"))
	if got.Kind != types.GUIInteraction || !got.Fallback || got.Reason != "reasoning_unavailable" {
		t.Errorf("got %+v, want GUI_INTERACTION fallback reasoning_unavailable", got)
	}
}

func TestRecognize_IntentLockTimeout(t *testing.T) {
	t.Parallel()

	lock := NewIntentLock()
	lock.TryAcquire(context.Background(), time.Second) // hold it

	r := &Recognizer{
		Reasoning:           collab.ReasoningClient{Classify: func(ctx context.Context, text string) (types.Intent, error) { return types.Intent{}, nil }},
		Lock:                lock,
		IntentLockTimeout:   20 * time.Millisecond,
		ConfidenceThreshold: 0.7,
	}

	got := r.Recognize(context.Background(), types.NewUtterance("open settings"))
	if got.Reason != "intent_lock_timeout" {
		t.Errorf("Reason = %q, want intent_lock_timeout", got.Reason)
	}
}

func TestRecognize_ClassifyError(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		return types.Intent{}, fmt.Errorf("upstream down")
	})

	got := r.Recognize(context.Background(), types.NewUtterance("open settings"))
	if got.Reason != "reasoning_unavailable" {
		t.Errorf("Reason = %q, want reasoning_unavailable", got.Reason)
	}
}

func TestRecognize_DecodeFailureMapsToParseFailed(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		var discard struct{}
		err := envelope.DecodeLenient(json.RawMessage("I'm not sure how to classify that."), &discard)
		return types.Intent{}, err
	})

	got := r.Recognize(context.Background(), types.NewUtterance("open settings"))
	if got.Reason != "parse_failed" {
		t.Errorf("Reason = %q, want parse_failed", got.Reason)
	}
}

func TestRecognize_UnknownLabel(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		return types.Intent{Kind: "SOMETHING_ELSE", Confidence: 0.9}, nil
	})

	got := r.Recognize(context.Background(), types.NewUtterance("open settings"))
	if got.Reason != "unknown_label" || got.Kind != types.GUIInteraction {
		t.Errorf("got %+v, want GUI_INTERACTION fallback unknown_label", got)
	}
}

func TestRecognize_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		return types.Intent{Kind: types.QuestionAnswering, Confidence: 1.8}, nil
	})

	got := r.Recognize(context.Background(), types.NewUtterance("what's on screen"))
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", got.Confidence)
	}
}

func TestRecognize_BelowThresholdFallsBackToGUI(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		return types.Intent{Kind: types.QuestionAnswering, Confidence: 0.4}, nil
	})

	got := r.Recognize(context.Background(), types.NewUtterance("what's on screen"))
	if got.Kind != types.GUIInteraction || !got.Fallback || got.Reason != "low_confidence" {
		t.Errorf("got %+v, want GUI_INTERACTION fallback low_confidence", got)
	}
}

func TestRecognize_HighConfidencePassesThrough(t *testing.T) {
	t.Parallel()

	r := newRecognizer(func(ctx context.Context, text string) (types.Intent, error) {
		return types.Intent{Kind: types.ConversationalChat, Confidence: 0.95}, nil
	})

	got := r.Recognize(context.Background(), types.NewUtterance("tell me a joke"))
	if got.Kind != types.ConversationalChat || got.Fallback {
		t.Errorf("got %+v, want ConversationalChat, not fallback", got)
	}
}

func TestIntentLock_ReleaseWithoutAcquirePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic from releasing an unheld lock")
		}
	}()
	NewIntentLock().Release()
}
