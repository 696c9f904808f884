package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/types"
)

type fakeSink struct{}

func (fakeSink) Play(ctx context.Context, soundID string) error { return nil }
func (fakeSink) Speak(ctx context.Context, text string) error   { return nil }

type fakeMirror struct {
	mirrored []types.ConversationTurn
	loadErr  error
	mirrErr  error
}

func (m *fakeMirror) Mirror(ctx context.Context, sessionID string, turns []types.ConversationTurn) error {
	m.mirrored = turns
	return m.mirrErr
}

func (m *fakeMirror) Load(ctx context.Context, sessionID string) ([]types.ConversationTurn, error) {
	return m.mirrored, m.loadErr
}

func newReasoning(chat func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error)) collab.ReasoningClient {
	return collab.ReasoningClient{Chat: chat}
}

func TestHandle_AppendsTurnsAndRepliesSuccessfully(t *testing.T) {
	t.Parallel()

	var seenMessages []collab.ChatMessage
	reasoning := newReasoning(func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error) {
		seenMessages = messages
		return "I'm doing well, thanks for asking.", nil
	})
	h := &Handler{Reasoning: reasoning, Audio: audio.New(fakeSink{}, nil)}

	u := types.NewUtterance("how are you")
	res := h.Handle(context.Background(), u, types.Intent{})

	if res.Status != types.StatusSuccess || res.Method != types.MethodConversation {
		t.Fatalf("res = %+v, want CONVERSATION success", res)
	}
	if res.Payload != "I'm doing well, thanks for asking." {
		t.Errorf("Payload = %q", res.Payload)
	}
	if len(seenMessages) != 1 || seenMessages[0].Content != "how are you" {
		t.Errorf("seenMessages = %+v, want the single user turn", seenMessages)
	}
	if len(h.history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (user + assistant)", len(h.history))
	}
	if h.history[0].Role != "user" || h.history[1].Role != "assistant" {
		t.Errorf("history roles = %q, %q", h.history[0].Role, h.history[1].Role)
	}
}

func TestHandle_ReasoningFailureReturnsApologeticFallback(t *testing.T) {
	t.Parallel()

	reasoning := newReasoning(func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error) {
		return "", errors.New("model unreachable")
	})
	h := &Handler{Reasoning: reasoning, Audio: audio.New(fakeSink{}, nil)}

	u := types.NewUtterance("tell me a joke")
	res := h.Handle(context.Background(), u, types.Intent{})

	if res.Status != types.StatusError {
		t.Fatalf("res.Status = %v, want ERROR", res.Status)
	}
	if res.Err == nil {
		t.Error("res.Err should be set on reasoning failure")
	}
}

func TestHandle_EvictsOldestTurnsPastHistoryMax(t *testing.T) {
	t.Parallel()

	reasoning := newReasoning(func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error) {
		return "ok", nil
	})
	h := &Handler{Reasoning: reasoning, Audio: audio.New(fakeSink{}, nil), HistoryMax: 4}

	for i := 0; i < 5; i++ {
		h.Handle(context.Background(), types.NewUtterance("message"), types.Intent{})
	}

	if len(h.history) != 4 {
		t.Fatalf("len(history) = %d, want capped at HistoryMax=4", len(h.history))
	}
}

func TestHandle_MirrorsHistoryWhenConfigured(t *testing.T) {
	t.Parallel()

	reasoning := newReasoning(func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error) {
		return "mirrored reply", nil
	})
	mirror := &fakeMirror{}
	h := &Handler{Reasoning: reasoning, Audio: audio.New(fakeSink{}, nil), Mirror: mirror}

	h.Handle(context.Background(), types.NewUtterance("hi"), types.Intent{})

	if len(mirror.mirrored) != 2 {
		t.Fatalf("mirror.mirrored has %d turns, want 2", len(mirror.mirrored))
	}
}

func TestRehydrate_LoadsHistoryFromMirror(t *testing.T) {
	t.Parallel()

	mirror := &fakeMirror{mirrored: []types.ConversationTurn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}}
	h := &Handler{Mirror: mirror, Audio: audio.New(fakeSink{}, nil)}

	if err := h.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}
	if len(h.history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(h.history))
	}
}

func TestRehydrate_NoMirrorIsNoop(t *testing.T) {
	t.Parallel()

	h := &Handler{Audio: audio.New(fakeSink{}, nil)}
	if err := h.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate() error = %v, want nil when Mirror is unset", err)
	}
}
