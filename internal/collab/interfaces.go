// Package collab declares the capability-typed interfaces the orchestrator
// core depends on. Every external capability — reasoning, vision,
// accessibility, browser/PDF extraction, input automation, mouse capture,
// audio feedback, and the clock — is expressed as a narrow interface here;
// concrete implementations live in subpackages and are wired by the host
// process, never imported directly by the core.
package collab

import (
	"context"
	"time"

	"github.com/normanking/aura-orchestrator/internal/types"
)

// ReasoningClient is the core's view of the reasoning-model collaborator.
type ReasoningClient struct {
	Classify func(ctx context.Context, text string) (types.Intent, error)
	Chat     func(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)
	Complete func(ctx context.Context, prompt string, opts ChatOptions) (string, error)
}

// ChatMessage is one turn of a reasoning-model conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a single reasoning call.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
	SystemHint  string
}

// VisionClient captures the screen and asks the vision collaborator to
// describe or plan an action against it.
type VisionClient interface {
	CaptureAndAnalyze(ctx context.Context, prompt string) (VisionResult, error)
}

// VisionResult is either an ActionPlan (a point to act on) or a
// Description (free text), distinguished by IsAction.
type VisionResult struct {
	IsAction    bool
	Point       types.Rect
	Description string
}

// AccessibilityClient exposes OS accessibility-tree traversal.
type AccessibilityClient interface {
	DetectActiveApp(ctx context.Context) (types.ApplicationInfo, error)
	FindElements(ctx context.Context, role, label, appHint string) ([]types.Element, error)
	FindScrollableRegions(ctx context.Context, appHint string) ([]types.Element, error)
}

// BrowserExtractor extracts visible text from the foreground browser tab,
// best-effort, within a caller-supplied budget.
type BrowserExtractor interface {
	ExtractText(ctx context.Context, app types.ApplicationInfo) (string, error)
}

// PdfExtractor extracts visible text from the foreground PDF document,
// best-effort, within a caller-supplied budget.
type PdfExtractor interface {
	ExtractText(ctx context.Context, app types.ApplicationInfo) (string, error)
}

// Automation performs low-level input injection. Type and Paste must not
// impose an internal timeout; the caller owns cancellation via ctx.
type Automation interface {
	Click(ctx context.Context, point types.Rect, button string, count int) error
	Type(ctx context.Context, text string) error
	Paste(ctx context.Context, text string) error
	Scroll(ctx context.Context, point types.Rect, dx, dy float64) error
	Key(ctx context.Context, modifiers []string, key string) error
}

// MouseCapture lets the Deferred Action Handler wait for a single click
// anywhere on screen without polling.
type MouseCapture interface {
	SubscribeSingleClick(ctx context.Context, token string) (<-chan types.Rect, error)
	Cancel(token string)
}

// AudioFeedbackSink is the façade's underlying sound/speech device.
type AudioFeedbackSink interface {
	Play(ctx context.Context, soundID string) error
	Speak(ctx context.Context, text string) error
}

// Clock abstracts time so concurrency and timeout logic can be tested
// deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	Deadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc)
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

func (SystemClock) Deadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
