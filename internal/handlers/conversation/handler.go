// Package conversation implements the Conversation Handler: stateful
// dialogue over the reasoning collaborator, seeded with a persona prompt
// and a bounded, atomically-updated history window.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/types"
)

const defaultHistoryMax = 10

const personaPrompt = "You are AURA, a calm and concise voice assistant. " +
	"Answer naturally in one or two sentences unless asked for more detail."

// HistoryMirror is the subset of store.HistoryCache the handler depends
// on, kept as a narrow interface so the mirror is optional and testable
// without a live Redis connection.
type HistoryMirror interface {
	Mirror(ctx context.Context, sessionID string, turns []types.ConversationTurn) error
	Load(ctx context.Context, sessionID string) ([]types.ConversationTurn, error)
}

// sessionID is fixed: AURA runs as a single-user desktop assistant with no
// multi-session concept, so one history window serves the whole process.
const sessionID = "local"

// Handler implements handlers.Handler for CONVERSATIONAL_CHAT.
type Handler struct {
	Reasoning collab.ReasoningClient
	Audio     *audio.Facade
	Mirror    HistoryMirror
	Clock     collab.Clock
	Logger    *slog.Logger

	HistoryMax int

	mu      sync.Mutex
	history []types.ConversationTurn
}

func (h *Handler) Supports(kind types.IntentKind) bool {
	return kind == types.ConversationalChat
}

// Handle appends the user's turn, calls the reasoning collaborator with
// the persona prompt and the bounded history, appends the assistant's
// reply, and evicts down to the configured history window — all under a
// single mutex so the update is atomic per turn.
func (h *Handler) Handle(ctx context.Context, u types.Utterance, intent types.Intent) types.HandlerResult {
	start := h.clock().Now()
	logger := h.logger().With("utterance_id", u.ID)

	h.mu.Lock()
	h.history = append(h.history, types.ConversationTurn{Role: "user", Content: u.Text, Ts: u.ReceivedAt})
	messages := h.buildMessages()

	reply, err := h.Reasoning.Chat(ctx, messages, collab.ChatOptions{SystemHint: personaPrompt})
	if err != nil {
		h.mu.Unlock()
		logger.Warn("conversation: reasoning call failed, returning apologetic fallback", "error", err)
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrReasoningUnavailable.Code).Inc()
		h.Audio.EnhancedError(ctx, "Sorry, I couldn't think of a reply just now.", "conversation")
		return types.HandlerResult{
			Status: types.StatusError, Method: types.MethodConversation,
			Err: aurerrors.Wrap(aurerrors.ErrReasoningUnavailable, err), CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	h.history = append(h.history, types.ConversationTurn{Role: "assistant", Content: reply, Ts: h.clock().Now()})
	h.evictLocked()
	snapshot := append([]types.ConversationTurn(nil), h.history...)
	h.mu.Unlock()

	if h.Mirror != nil {
		if err := h.Mirror.Mirror(ctx, sessionID, snapshot); err != nil {
			logger.Warn("conversation: history mirror write failed", "error", err)
		}
	}

	h.Audio.Conversational(ctx, reply)
	metrics.HandlerDuration.WithLabelValues(string(types.ConversationalChat), string(types.MethodConversation), string(types.StatusSuccess)).
		Observe(h.clock().Now().Sub(start).Seconds())

	return types.HandlerResult{
		Status: types.StatusSuccess, Method: types.MethodConversation,
		Payload: reply, CorrelationID: u.ID,
		Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

// buildMessages converts the current history into chat messages. Caller
// must hold h.mu.
func (h *Handler) buildMessages() []collab.ChatMessage {
	messages := make([]collab.ChatMessage, 0, len(h.history))
	for _, turn := range h.history {
		messages = append(messages, collab.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// evictLocked trims history down to the configured window, oldest first.
// Caller must hold h.mu.
func (h *Handler) evictLocked() {
	max := h.historyMax()
	if len(h.history) > max {
		h.history = h.history[len(h.history)-max:]
	}
}

// Rehydrate loads the mirrored history from the cache, if configured, so a
// restarted host process can resume a conversation in progress.
func (h *Handler) Rehydrate(ctx context.Context) error {
	if h.Mirror == nil {
		return nil
	}
	turns, err := h.Mirror.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.history = turns
	h.evictLocked()
	h.mu.Unlock()
	return nil
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

func (h *Handler) historyMax() int {
	if h.HistoryMax > 0 {
		return h.HistoryMax
	}
	return defaultHistoryMax
}
