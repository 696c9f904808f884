// Package gui implements the GUI Handler: a two-phase strategy that first
// tries a low-latency accessibility-tree lookup (the fast path) and falls
// back to a vision-model action plan (the slow path) when the fast path
// cannot locate or act on a target element.
package gui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// clickableRoles is the extended clickable role set the fast path searches.
var clickableRoles = []string{
	"AXButton", "AXMenuButton", "AXMenuItem", "AXMenuBarItem", "AXLink",
	"AXCheckBox", "AXRadioButton", "AXTab", "AXToolbarButton",
	"AXPopUpButton", "AXComboBox",
}

// Handler implements handlers.Handler for GUI_INTERACTION.
type Handler struct {
	Accessibility collab.AccessibilityClient
	Vision        collab.VisionClient
	Automation    collab.Automation
	Audio         *audio.Facade
	Clock         collab.Clock
	Logger        *slog.Logger

	FuzzyMatchThreshold int
	RetryMax            int
	BackoffBase         time.Duration
}

func (h *Handler) Supports(kind types.IntentKind) bool {
	return kind == types.GUIInteraction
}

// Handle dispatches a GUI command using the fast accessibility path, then
// the vision slow path if the fast path cannot proceed.
func (h *Handler) Handle(ctx context.Context, u types.Utterance, intent types.Intent) types.HandlerResult {
	start := h.clock().Now()
	action, _ := intent.Parameters["action"].(string)
	role, _ := intent.Parameters["role"].(string)
	label, _ := intent.Parameters["label"].(string)

	logger := h.logger().With("utterance_id", u.ID, "action", action, "label", label)

	if strings.TrimSpace(label) == "" {
		logger.Debug("no label parameter, skipping fast path")
		return h.slowPath(ctx, u, intent, start)
	}

	if strings.EqualFold(action, "scroll_at") {
		return h.handleScroll(ctx, u, intent, start)
	}

	res, err := h.fastPath(ctx, role, label, action, intent.Parameters)
	if err == nil {
		metrics.HandlerDuration.WithLabelValues(string(types.GUIInteraction), string(types.MethodFastPath), string(types.StatusSuccess)).
			Observe(h.clock().Now().Sub(start).Seconds())
		h.Audio.Success(ctx, "", "")
		return res
	}

	if errors.Is(err, aurerrors.ErrPermissionDenied) {
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrPermissionDenied.Code).Inc()
		h.Audio.EnhancedError(ctx, "Permission denied.", "gui")
		return types.HandlerResult{
			Status: types.StatusError, Method: types.MethodFastPath,
			Err: err, CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	logger.Info("fast path failed, escalating to vision slow path", "error", err)
	return h.slowPath(ctx, u, intent, start)
}

// fastPath resolves the active app, searches the extended clickable role
// set for a matching element, and dispatches the action. Retryable errors
// are retried with exponential backoff up to RetryMax times.
func (h *Handler) fastPath(ctx context.Context, role, label, action string, params map[string]any) (types.HandlerResult, error) {
	app, err := h.Accessibility.DetectActiveApp(ctx)
	if err != nil {
		return types.HandlerResult{}, aurerrors.Wrap(aurerrors.ErrModuleUnavailable, err)
	}

	var elems []types.Element
	backoff := h.backoffBase()
	for attempt := 0; ; attempt++ {
		elems, err = h.Accessibility.FindElements(ctx, role, label, app.Name)
		if err == nil {
			break
		}
		if errors.Is(err, aurerrors.ErrPermissionDenied) {
			return types.HandlerResult{}, err
		}
		if !isRetryable(err) || attempt >= h.retryMax() {
			return types.HandlerResult{}, aurerrors.Wrap(aurerrors.ErrElementNotFound, err)
		}
		h.clock().Sleep(backoff)
		backoff *= 2
	}

	if len(elems) == 0 {
		return types.HandlerResult{}, aurerrors.ErrElementNotFound
	}

	best := h.bestMatch(label, elems)
	if best == nil {
		return types.HandlerResult{}, aurerrors.ErrElementNotFound
	}

	if err := h.dispatch(ctx, action, *best, params); err != nil {
		return types.HandlerResult{}, err
	}

	return types.HandlerResult{
		Status: types.StatusSuccess, Method: types.MethodFastPath,
	}, nil
}

// bestMatch narrows elems to clickable roles, fuzzy-matches each against
// label across Title/Description/Value, and picks the best candidate:
// exact-title match > enabled > larger bounding box.
func (h *Handler) bestMatch(label string, elems []types.Element) *types.Element {
	candidates := make([]types.Element, 0, len(elems))
	for _, e := range elems {
		if isClickableRole(e.Role) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		candidates = elems
	}

	normLabel := strings.ToLower(strings.TrimSpace(label))

	var ranked []scoredElement
	for _, e := range candidates {
		text := strings.ToLower(strings.TrimSpace(e.Title))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(e.Description))
		}
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(e.Value))
		}
		exact := text == normLabel

		score := 0
		if !exact && text != "" {
			matches := fuzzy.Find(normLabel, []string{text})
			if len(matches) == 0 {
				continue
			}
			score = matches[0].Score
			if !passesFuzzyThreshold(score, len(normLabel), h.fuzzyThreshold()) {
				continue
			}
		}
		ranked = append(ranked, scoredElement{elem: e, exact: exact, score: score})
	}
	if len(ranked) == 0 {
		return nil
	}

	best := ranked[0]
	for _, r := range ranked[1:] {
		if better(r, best) {
			best = r
		}
	}
	return &best.elem
}

// scoredElement pairs a candidate Element with its match quality for the
// exact-title > enabled > larger-bounding-box tie-break.
type scoredElement struct {
	elem  types.Element
	exact bool
	score int
}

func better(a, b scoredElement) bool {
	if a.exact != b.exact {
		return a.exact
	}
	if a.elem.Enabled != b.elem.Enabled {
		return a.elem.Enabled
	}
	return a.elem.Coordinates.Area() > b.elem.Coordinates.Area()
}

// passesFuzzyThreshold converts sahilm/fuzzy's raw score into a 0-100 scale
// proportional to query length and compares it to thresholdPct.
func passesFuzzyThreshold(score, queryLen, thresholdPct int) bool {
	if queryLen == 0 {
		return false
	}
	pct := (score * 100) / (queryLen * 2)
	if pct > 100 {
		pct = 100
	}
	return pct >= thresholdPct
}

func isClickableRole(role string) bool {
	for _, r := range clickableRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// dispatch sends the resolved action to the automation collaborator.
func (h *Handler) dispatch(ctx context.Context, action string, elem types.Element, params map[string]any) error {
	switch strings.ToLower(action) {
	case "click", "":
		return h.Automation.Click(ctx, elem.Coordinates, "left", 1)
	case "double_click":
		return h.Automation.Click(ctx, elem.Coordinates, "left", 2)
	case "right_click":
		return h.Automation.Click(ctx, elem.Coordinates, "right", 1)
	case "type_at":
		if err := h.Automation.Click(ctx, elem.Coordinates, "left", 1); err != nil {
			return err
		}
		text, _ := params["text"].(string)
		return h.Automation.Type(ctx, text)
	case "scroll_at":
		dx, _ := params["dx"].(float64)
		dy, _ := params["dy"].(float64)
		return h.Automation.Scroll(ctx, elem.Coordinates, dx, dy)
	default:
		return h.Automation.Click(ctx, elem.Coordinates, "left", 1)
	}
}

// slowPath captures the screen, asks the vision collaborator for an action
// plan or description, validates coordinates, and executes through
// automation.
func (h *Handler) slowPath(ctx context.Context, u types.Utterance, intent types.Intent, start time.Time) types.HandlerResult {
	h.Audio.AnalyzingScreen(ctx)

	label, _ := intent.Parameters["label"].(string)
	prompt := fmt.Sprintf("Locate and act on: %s (%s)", label, u.Text)

	result, err := h.Vision.CaptureAndAnalyze(ctx, prompt)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrReasoningUnavailable.Code).Inc()
		h.Audio.EnhancedError(ctx, "I couldn't complete that action.", "gui")
		return types.HandlerResult{
			Status: types.StatusError, Method: types.MethodSlowPath,
			Err: aurerrors.Wrap(aurerrors.ErrReasoningUnavailable, err), CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	if !result.IsAction {
		metrics.HandlerDuration.WithLabelValues(string(types.GUIInteraction), string(types.MethodSlowPath), string(types.StatusSuccess)).
			Observe(h.clock().Now().Sub(start).Seconds())
		return types.HandlerResult{
			Status: types.StatusSuccess, Method: types.MethodSlowPath,
			Payload: result.Description, CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	action, _ := intent.Parameters["action"].(string)
	if err := h.dispatch(ctx, action, types.Element{Coordinates: result.Point, Enabled: true}, intent.Parameters); err != nil {
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrInvalidCoordinates.Code).Inc()
		h.Audio.EnhancedError(ctx, "That action failed.", "gui")
		return types.HandlerResult{
			Status: types.StatusError, Method: types.MethodSlowPath,
			Err: aurerrors.Wrap(aurerrors.ErrInvalidCoordinates, err), CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	h.Audio.Success(ctx, "", "")
	metrics.HandlerDuration.WithLabelValues(string(types.GUIInteraction), string(types.MethodSlowPath), string(types.StatusSuccess)).
		Observe(h.clock().Now().Sub(start).Seconds())
	return types.HandlerResult{
		Status: types.StatusSuccess, Method: types.MethodSlowPath,
		CorrelationID: u.ID,
		Timings:       map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

// handleScroll implements the scroll-refinement subcase: locate a
// scrollable region via accessibility (or vision, if accessibility yields
// none), click its center to establish focus, wait for focus to settle,
// then issue the scroll. If the scroll collaborator reports an error, retry
// once at double magnitude, then at half magnitude, then along the
// alternate axis, before escalating to the vision slow path.
func (h *Handler) handleScroll(ctx context.Context, u types.Utterance, intent types.Intent, start time.Time) types.HandlerResult {
	dx, _ := intent.Parameters["dx"].(float64)
	dy, _ := intent.Parameters["dy"].(float64)
	appHint, _ := intent.Parameters["label"].(string)

	regions, err := h.Accessibility.FindScrollableRegions(ctx, appHint)
	if err != nil || len(regions) == 0 {
		h.logger().Debug("no scrollable region found via accessibility, falling back to vision", "error", err)
		return h.slowPath(ctx, u, intent, start)
	}

	target := regions[0]
	for _, r := range regions[1:] {
		if r.Coordinates.Area() > target.Coordinates.Area() {
			target = r
		}
	}

	if err := h.Automation.Click(ctx, target.Coordinates, "left", 1); err != nil {
		return h.slowPath(ctx, u, intent, start)
	}
	h.clock().Sleep(100 * time.Millisecond) // let focus settle

	magnitudes := [][2]float64{{dx, dy}, {dx * 2, dy * 2}, {dx / 2, dy / 2}, {dy, dx}}
	for _, m := range magnitudes {
		if err := h.Automation.Scroll(ctx, target.Coordinates, m[0], m[1]); err == nil {
			metrics.HandlerDuration.WithLabelValues(string(types.GUIInteraction), string(types.MethodFastPath), string(types.StatusSuccess)).
				Observe(h.clock().Now().Sub(start).Seconds())
			h.Audio.Success(ctx, "", "")
			return types.HandlerResult{
				Status: types.StatusSuccess, Method: types.MethodFastPath, CorrelationID: u.ID,
				Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
			}
		}
	}

	return h.slowPath(ctx, u, intent, start)
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

func (h *Handler) retryMax() int {
	if h.RetryMax > 0 {
		return h.RetryMax
	}
	return 2
}

func (h *Handler) backoffBase() time.Duration {
	if h.BackoffBase > 0 {
		return h.BackoffBase
	}
	return 50 * time.Millisecond
}

func (h *Handler) fuzzyThreshold() int {
	if h.FuzzyMatchThreshold > 0 {
		return h.FuzzyMatchThreshold
	}
	return 85
}

// isRetryable reports whether err represents a transient accessibility
// condition (timeout, tree-traversal failure, or other recoverable I/O
// error) that the fast path should retry in place before escalating.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, aurerrors.ErrPermissionDenied) || errors.Is(err, aurerrors.ErrElementNotFound) {
		return false
	}
	return aurerrors.IsRecoverable(err)
}
