// Package rpcclient implements the ReasoningClient and VisionClient
// collaborators over a JSON-over-WebSocket request/response protocol: one
// frame out, one frame in, per call. The dial/reconnect shape is grounded
// on the avatar app's vision streaming client; here each call opens a
// short-lived connection since requests are independent rather than a
// continuous frame feed.
package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/collab/envelope"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// ReasoningConfig configures a WebSocket-backed ReasoningClient.
type ReasoningConfig struct {
	BaseURL string // e.g. ws://localhost:8090 or http(s):// (upgraded automatically)
	Path    string // e.g. /v1/reasoning
}

type classifyRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatRequest struct {
	Type     string            `json:"type"`
	Messages []collab.ChatMessage `json:"messages"`
	Options  collab.ChatOptions   `json:"options"`
}

type completeRequest struct {
	Type    string             `json:"type"`
	Prompt  string             `json:"prompt"`
	Options collab.ChatOptions `json:"options"`
}

type classifyReply struct {
	Kind       string         `json:"kind"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters"`
}

// NewReasoningClient builds a collab.ReasoningClient whose three function
// fields each dial cfg once, send one request frame, read one reply frame,
// and close. Chat and Complete replies are parsed through the shared
// envelope.ExtractText so the caller never has to special-case the
// collaborator's exact wire shape.
func NewReasoningClient(cfg ReasoningConfig) collab.ReasoningClient {
	return collab.ReasoningClient{
		Classify: func(ctx context.Context, text string) (types.Intent, error) {
			raw, err := roundTrip(ctx, cfg, classifyRequest{Type: "classify", Text: text})
			if err != nil {
				return types.Intent{}, err
			}
			var cr classifyReply
			if err := envelope.DecodeLenient(raw, &cr); err != nil {
				return types.Intent{}, fmt.Errorf("rpcclient: decoding classify reply: %w", err)
			}
			return types.Intent{
				Kind:       types.IntentKind(cr.Kind),
				Confidence: cr.Confidence,
				Parameters: cr.Parameters,
			}, nil
		},
		Chat: func(ctx context.Context, messages []collab.ChatMessage, opts collab.ChatOptions) (string, error) {
			raw, err := roundTrip(ctx, cfg, chatRequest{Type: "chat", Messages: messages, Options: opts})
			if err != nil {
				return "", err
			}
			return envelope.ExtractText(raw)
		},
		Complete: func(ctx context.Context, prompt string, opts collab.ChatOptions) (string, error) {
			raw, err := roundTrip(ctx, cfg, completeRequest{Type: "complete", Prompt: prompt, Options: opts})
			if err != nil {
				return "", err
			}
			return envelope.ExtractText(raw)
		},
	}
}

// roundTrip dials cfg's endpoint, writes req as JSON, reads exactly one
// reply frame, and closes the connection. The context deadline governs
// both the dial and the read.
func roundTrip(ctx context.Context, cfg ReasoningConfig, req any) (json.RawMessage, error) {
	wsURL, err := toWebSocketURL(cfg.BaseURL, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("rpcclient: write request: %w", err)
	}

	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		return nil, fmt.Errorf("rpcclient: read reply: %w", err)
	}
	return raw, nil
}

func toWebSocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	if path != "" {
		u.Path = path
	}
	return u.String(), nil
}
