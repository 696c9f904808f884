package rpcclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/collab/envelope"
)

// echoUpgrader starts an httptest server that upgrades every request to a
// WebSocket and writes back a single fixed reply frame, mirroring the
// request/response shape the real reasoning collaborator speaks.
func echoUpgrader(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
	}))
	return srv
}

func TestReasoningClient_Classify(t *testing.T) {
	t.Parallel()

	srv := echoUpgrader(t, `{"kind":"GUI_INTERACTION","confidence":0.92,"parameters":{"target":"submit button"}}`)
	defer srv.Close()

	cfg := ReasoningConfig{BaseURL: "http" + strings.TrimPrefix(srv.URL, "http"), Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	intent, err := client.Classify(ctx, "click submit")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if intent.Kind != "GUI_INTERACTION" {
		t.Errorf("Kind = %q, want GUI_INTERACTION", intent.Kind)
	}
	if intent.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", intent.Confidence)
	}
	if intent.Parameters["target"] != "submit button" {
		t.Errorf("Parameters[target] = %v, want %q", intent.Parameters["target"], "submit button")
	}
}

func TestReasoningClient_Classify_ProseWrappedReply(t *testing.T) {
	t.Parallel()

	reply := "Here's my classification:\n```json\n{\"kind\":\"GUI_INTERACTION\",\"confidence\":0.88,\"parameters\":{\"target\":\"submit button\"}}\n```"
	srv := echoUpgrader(t, reply)
	defer srv.Close()

	cfg := ReasoningConfig{BaseURL: "http" + strings.TrimPrefix(srv.URL, "http"), Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	intent, err := client.Classify(ctx, "click submit")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if intent.Kind != "GUI_INTERACTION" {
		t.Errorf("Kind = %q, want GUI_INTERACTION", intent.Kind)
	}
	if intent.Confidence != 0.88 {
		t.Errorf("Confidence = %v, want 0.88", intent.Confidence)
	}
	if intent.Parameters["target"] != "submit button" {
		t.Errorf("Parameters[target] = %v, want %q", intent.Parameters["target"], "submit button")
	}
}

func TestReasoningClient_Classify_UnparsableReplyWrapsErrDecodeFailed(t *testing.T) {
	t.Parallel()

	srv := echoUpgrader(t, "I'm not sure how to classify that.")
	defer srv.Close()

	cfg := ReasoningConfig{BaseURL: "http" + strings.TrimPrefix(srv.URL, "http"), Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Classify(ctx, "click submit"); !errors.Is(err, envelope.ErrDecodeFailed) {
		t.Errorf("Classify error = %v, want wrapped envelope.ErrDecodeFailed", err)
	}
}

func TestReasoningClient_Chat_OpenAIShape(t *testing.T) {
	t.Parallel()

	srv := echoUpgrader(t, `{"choices":[{"message":{"content":"hi there"}}]}`)
	defer srv.Close()

	cfg := ReasoningConfig{BaseURL: "http" + strings.TrimPrefix(srv.URL, "http"), Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	text, err := client.Chat(ctx, []collab.ChatMessage{{Role: "user", Content: "hello"}}, collab.ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "hi there" {
		t.Errorf("Chat() = %q, want %q", text, "hi there")
	}
}

func TestReasoningClient_Complete_DirectResponseShape(t *testing.T) {
	t.Parallel()

	srv := echoUpgrader(t, `{"response":"completed text"}`)
	defer srv.Close()

	cfg := ReasoningConfig{BaseURL: "http" + strings.TrimPrefix(srv.URL, "http"), Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	text, err := client.Complete(ctx, "prompt", collab.ChatOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "completed text" {
		t.Errorf("Complete() = %q, want %q", text, "completed text")
	}
}

func TestReasoningClient_DialFailure(t *testing.T) {
	t.Parallel()

	cfg := ReasoningConfig{BaseURL: "http://127.0.0.1:1", Path: "/v1/reasoning"}
	client := NewReasoningClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := client.Classify(ctx, "text"); err == nil {
		t.Error("expected dial error, got nil")
	}
}
