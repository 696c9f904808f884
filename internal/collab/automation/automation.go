// Package automation implements the clipboard-paste half of the
// Automation collaborator with github.com/atotto/clipboard, and composes
// it with an injected native-input primitive for the remaining,
// inherently OS-specific operations (click, type, scroll, key) that have
// no portable Go library equivalent.
package automation

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"

	"github.com/normanking/aura-orchestrator/internal/types"
)

// Native performs the OS-native input primitives this package cannot
// implement portably. A host process supplies a real implementation
// (CGEventCreateMouseEvent on macOS, SendInput on Windows, XTest on
// X11, ...); tests use a fake.
type Native interface {
	Click(ctx context.Context, point types.Rect, button string, count int) error
	Type(ctx context.Context, text string) error
	Scroll(ctx context.Context, point types.Rect, dx, dy float64) error
	Key(ctx context.Context, modifiers []string, key string) error
	TriggerPasteKeystroke(ctx context.Context) error
}

// OSAutomation implements collab.Automation by delegating click/type/
// scroll/key to Native and implementing Paste as "write to clipboard,
// then trigger the platform paste keystroke" — the same two-step
// combination described for the Automation.paste capability.
type OSAutomation struct {
	Native Native
}

// NewOSAutomation returns an OSAutomation backed by native.
func NewOSAutomation(native Native) *OSAutomation {
	return &OSAutomation{Native: native}
}

func (a *OSAutomation) Click(ctx context.Context, point types.Rect, button string, count int) error {
	return a.Native.Click(ctx, point, button, count)
}

func (a *OSAutomation) Type(ctx context.Context, text string) error {
	return a.Native.Type(ctx, text)
}

// Paste writes text to the system clipboard and then triggers the
// platform paste keystroke. It intentionally does not apply a per-call
// timeout beyond ctx; the caller owns cancellation policy.
func (a *OSAutomation) Paste(ctx context.Context, text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("automation: writing clipboard: %w", err)
	}
	if err := a.Native.TriggerPasteKeystroke(ctx); err != nil {
		return fmt.Errorf("automation: triggering paste keystroke: %w", err)
	}
	return nil
}

func (a *OSAutomation) Scroll(ctx context.Context, point types.Rect, dx, dy float64) error {
	return a.Native.Scroll(ctx, point, dx, dy)
}

func (a *OSAutomation) Key(ctx context.Context, modifiers []string, key string) error {
	return a.Native.Key(ctx, modifiers, key)
}
