package deferred

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/concurrency"
	"github.com/normanking/aura-orchestrator/internal/types"
)

type fakeMouse struct {
	mu         sync.Mutex
	subscribed map[string]chan types.Rect
	canceled   []string
}

func (m *fakeMouse) SubscribeSingleClick(ctx context.Context, token string) (<-chan types.Rect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed == nil {
		m.subscribed = make(map[string]chan types.Rect)
	}
	ch := make(chan types.Rect, 1)
	m.subscribed[token] = ch
	return ch, nil
}

func (m *fakeMouse) Cancel(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, token)
	if ch, ok := m.subscribed[token]; ok {
		close(ch)
		delete(m.subscribed, token)
	}
}

type fakeAutomation struct {
	mu        sync.Mutex
	clicks    []types.Rect
	typed     []string
	pasted    []string
	typeErr   error
	pasteErr  error
	clickErr  error
}

func (f *fakeAutomation) Click(ctx context.Context, point types.Rect, button string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, point)
	return f.clickErr
}
func (f *fakeAutomation) Type(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return f.typeErr
}
func (f *fakeAutomation) Paste(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pasted = append(f.pasted, text)
	return f.pasteErr
}
func (f *fakeAutomation) Scroll(ctx context.Context, point types.Rect, dx, dy float64) error { return nil }
func (f *fakeAutomation) Key(ctx context.Context, modifiers []string, key string) error      { return nil }

type fakeSink struct{}

func (fakeSink) Play(ctx context.Context, soundID string) error { return nil }
func (fakeSink) Speak(ctx context.Context, text string) error   { return nil }

func newReasoning(complete func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error)) collab.ReasoningClient {
	return collab.ReasoningClient{Complete: complete}
}

func newTestHandler(mouse *fakeMouse, auto *fakeAutomation, complete func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error)) *Handler {
	return &Handler{
		Reasoning:  newReasoning(complete),
		Mouse:      mouse,
		Automation: auto,
		Lock:       concurrency.NewExecutionLock(),
		Audio:      audio.New(fakeSink{}, nil),
		Timeout:    50 * time.Millisecond,
		TimeoutMin: time.Millisecond,
		TimeoutMax: time.Hour,
	}
}

func TestHandle_ArmsPendingAndReturnsWaiting(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "def fib(n):\n    return n", nil
	})

	u := types.NewUtterance("write me a fibonacci function")
	intent := types.Intent{Kind: types.DeferredActionIntent, Parameters: map[string]any{"content_type": "CODE"}}

	res := h.Handle(context.Background(), u, intent)
	if res.Status != types.StatusWaitingForUserAction || res.Method != types.MethodDeferred {
		t.Fatalf("res = %+v, want WAITING_FOR_USER_ACTION/DEFERRED", res)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != types.DeferredWaiting {
		t.Errorf("state = %v, want WAITING", h.state)
	}
	if h.pending == nil || h.pending.ContentType != types.ContentCode {
		t.Fatalf("pending = %+v, want a CODE pending", h.pending)
	}
}

func TestHandle_GenerationFailureReturnsError(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMouse{}, &fakeAutomation{}, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "", errors.New("model down")
	})

	res := h.Handle(context.Background(), types.NewUtterance("write something"), types.Intent{})
	if res.Status != types.StatusError {
		t.Fatalf("res.Status = %v, want ERROR", res.Status)
	}
}

func TestHandle_EmptyGenerationReturnsError(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMouse{}, &fakeAutomation{}, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "   ", nil
	})

	res := h.Handle(context.Background(), types.NewUtterance("write something"), types.Intent{})
	if res.Status != types.StatusError {
		t.Fatalf("res.Status = %v, want ERROR", res.Status)
	}
}

func TestOnClick_PlacesContentAndReturnsToIdle(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "a single line of text", nil
	})

	h.Handle(context.Background(), types.NewUtterance("write a note"), types.Intent{Parameters: map[string]any{"content_type": "TEXT"}})

	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()
	if pending == nil {
		t.Fatal("setup: expected an armed pending")
	}

	h.onClick(context.Background(), pending, types.Rect{X: 10, Y: 20})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != types.DeferredIdle || h.pending != nil {
		t.Errorf("state = %v, pending = %+v, want IDLE/nil after placement", h.state, h.pending)
	}
	if len(auto.clicks) != 1 {
		t.Errorf("clicks = %d, want 1 (focus click)", len(auto.clicks))
	}
}

func TestOnClick_DuplicateClickIsDroppedAfterFirstWins(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "multi\nline\ncontent", nil
	})

	h.Handle(context.Background(), types.NewUtterance("write some code"), types.Intent{Parameters: map[string]any{"content_type": "CODE"}})

	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()

	h.onClick(context.Background(), pending, types.Rect{X: 1, Y: 1})
	clicksAfterFirst := len(auto.clicks)

	// A second click for the same (now-consumed) pending must be a no-op:
	// the CAS fails because state is no longer WAITING.
	h.onClick(context.Background(), pending, types.Rect{X: 2, Y: 2})

	if len(auto.clicks) != clicksAfterFirst {
		t.Errorf("clicks after duplicate click = %d, want unchanged from %d", len(auto.clicks), clicksAfterFirst)
	}
}

func TestOnTimeout_ClearsStateAndCancelsSubscription(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "some content", nil
	})

	h.Handle(context.Background(), types.NewUtterance("write something"), types.Intent{})

	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()

	h.onTimeout(context.Background(), pending)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != types.DeferredIdle || h.pending != nil {
		t.Errorf("state = %v, pending = %+v, want IDLE/nil after timeout", h.state, h.pending)
	}
	if len(mouse.canceled) != 1 || mouse.canceled[0] != pending.ID {
		t.Errorf("canceled = %v, want [%s]", mouse.canceled, pending.ID)
	}
}

func TestOnTimeout_NoOpIfClickAlreadyWon(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "content", nil
	})

	h.Handle(context.Background(), types.NewUtterance("write something"), types.Intent{})
	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()

	h.onClick(context.Background(), pending, types.Rect{})
	h.onTimeout(context.Background(), pending)

	if len(mouse.canceled) != 0 {
		t.Errorf("canceled = %v, want empty: timeout should be a no-op once the click already won", mouse.canceled)
	}
}

func TestArm_PreemptsExistingWaitingPending(t *testing.T) {
	t.Parallel()

	mouse := &fakeMouse{}
	auto := &fakeAutomation{}
	h := newTestHandler(mouse, auto, func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
		return "generated content", nil
	})

	h.Handle(context.Background(), types.NewUtterance("write the first thing"), types.Intent{})
	h.mu.Lock()
	firstID := h.pending.ID
	h.mu.Unlock()

	h.Handle(context.Background(), types.NewUtterance("write the second thing"), types.Intent{})
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending == nil || h.pending.ID == firstID {
		t.Fatalf("expected a fresh pending to replace %q, got %+v", firstID, h.pending)
	}
	if len(mouse.canceled) != 1 || mouse.canceled[0] != firstID {
		t.Errorf("canceled = %v, want the first pending's token [%s]", mouse.canceled, firstID)
	}
}

func TestPlace_UsesPasteForMultilineOrLongContentAndTypeOtherwise(t *testing.T) {
	t.Parallel()

	auto := &fakeAutomation{}
	h := &Handler{Automation: auto, PasteThresholdChars: 20}

	if err := h.place(context.Background(), "short"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(auto.typed) != 1 || len(auto.pasted) != 0 {
		t.Errorf("short single-line content should use Type: typed=%v pasted=%v", auto.typed, auto.pasted)
	}

	if err := h.place(context.Background(), "line one\nline two"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(auto.pasted) != 1 {
		t.Errorf("multi-line content should use Paste: pasted=%v", auto.pasted)
	}
}

func TestClampTimeout_ClampsToConfiguredBounds(t *testing.T) {
	t.Parallel()

	h := &Handler{TimeoutMin: 60 * time.Second, TimeoutMax: 900 * time.Second}

	if got := h.clampTimeout(10 * time.Second); got != 60*time.Second {
		t.Errorf("clampTimeout(10s) = %v, want clamped to 60s min", got)
	}
	if got := h.clampTimeout(1000 * time.Second); got != 900*time.Second {
		t.Errorf("clampTimeout(1000s) = %v, want clamped to 900s max", got)
	}
	if got := h.clampTimeout(300 * time.Second); got != 300*time.Second {
		t.Errorf("clampTimeout(300s) = %v, want unchanged", got)
	}
}
