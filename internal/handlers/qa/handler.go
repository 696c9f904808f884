// Package qa implements the Question-Answering Handler: detect the active
// application, extract its visible text within a hard wall-clock budget,
// validate and normalize it, then ask the reasoning collaborator for a
// summary tailored to how the question was phrased.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/metrics"
	"github.com/normanking/aura-orchestrator/internal/types"
)

const (
	minExtractedChars = 50
	minExtractedWords  = 10
	maxExtractedBytes  = 50 * 1024
	defaultFallbackWords = 200
)

var noiseChromePhrases = []string{
	"skip to content", "cookie policy", "accept all cookies", "sign in to continue",
}

// Handler implements handlers.Handler for QUESTION_ANSWERING.
type Handler struct {
	Accessibility collab.AccessibilityClient
	Browser       collab.BrowserExtractor
	PDF           collab.PdfExtractor
	Vision        collab.VisionClient
	Reasoning     collab.ReasoningClient
	Audio         *audio.Facade
	Clock         collab.Clock
	Logger        *slog.Logger

	ExtractionBudget time.Duration
	SummarizeBudget  time.Duration
}

func (h *Handler) Supports(kind types.IntentKind) bool {
	return kind == types.QuestionAnswering
}

func (h *Handler) Handle(ctx context.Context, u types.Utterance, intent types.Intent) types.HandlerResult {
	start := h.clock().Now()
	logger := h.logger().With("utterance_id", u.ID)

	app, err := h.Accessibility.DetectActiveApp(ctx)
	if err != nil || (app.Kind != types.AppBrowser && app.Kind != types.AppPDFReader) {
		logger.Debug("active app is not a browser or PDF reader, falling back to vision", "kind", app.Kind)
		return h.visionPath(ctx, u, start)
	}

	extracted, err := h.extractWithBudget(ctx, app)
	if err != nil {
		logger.Info("extraction failed, falling back to vision", "error", err)
		return h.visionPath(ctx, u, start)
	}

	if !passesQualityGate(extracted) {
		logger.Info("extracted content failed the quality gate, falling back to vision")
		return h.visionPath(ctx, u, start)
	}

	normalized := normalizeWhitespace(truncateAtBoundary(extracted, maxExtractedBytes))

	summary, err := h.summarizeWithBudget(ctx, u.Text, normalized)
	if err != nil {
		logger.Warn("summarization failed, using extractive fallback", "error", err)
		summary = fallbackSummary(normalized, defaultFallbackWords)
	}

	h.Audio.Conversational(ctx, summary)
	metrics.HandlerDuration.WithLabelValues(string(types.QuestionAnswering), string(types.MethodFastPath), string(types.StatusSuccess)).
		Observe(h.clock().Now().Sub(start).Seconds())

	return types.HandlerResult{
		Status: types.StatusSuccess, Method: types.MethodFastPath,
		Payload: summary, CorrelationID: u.ID,
		Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

// extractWithBudget runs the browser/PDF extraction collaborator on a
// worker task with a hard deadline, reporting over a buffered channel so a
// timed-out caller never blocks on a goroutine still in flight.
func (h *Handler) extractWithBudget(ctx context.Context, app types.ApplicationInfo) (string, error) {
	budget := h.extractionBudget()
	extractCtx, cancel := h.clock().Deadline(ctx, budget)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		var text string
		var err error
		if app.Kind == types.AppPDFReader && h.PDF != nil {
			text, err = h.PDF.ExtractText(extractCtx, app)
		} else if h.Browser != nil {
			text, err = h.Browser.ExtractText(extractCtx, app)
		} else {
			err = aurerrors.ErrModuleUnavailable
		}
		resultCh <- result{text: text, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return "", aurerrors.Wrap(aurerrors.ErrExtractionFailed, r.err)
		}
		return r.text, nil
	case <-extractCtx.Done():
		return "", aurerrors.Wrap(aurerrors.ErrExtractionTimeout, extractCtx.Err())
	}
}

// summarizeWithBudget builds a phrasing-tailored prompt and asks the
// reasoning collaborator for a summary on a worker task with its own
// deadline.
func (h *Handler) summarizeWithBudget(ctx context.Context, question, content string) (string, error) {
	budget := h.summarizeBudget()
	sumCtx, cancel := h.clock().Deadline(ctx, budget)
	defer cancel()

	resultCh := make(chan struct {
		text string
		err  error
	}, 1)

	go func() {
		prompt := buildSummaryPrompt(question, content)
		text, err := h.Reasoning.Complete(sumCtx, prompt, collab.ChatOptions{})
		resultCh <- struct {
			text string
			err  error
		}{text, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return "", aurerrors.Wrap(aurerrors.ErrReasoningTimeout, r.err)
		}
		if strings.TrimSpace(r.text) == "" {
			return "", aurerrors.ErrContentGenerationEmpty
		}
		return r.text, nil
	case <-sumCtx.Done():
		return "", aurerrors.Wrap(aurerrors.ErrReasoningTimeout, sumCtx.Err())
	}
}

// visionPath mirrors the GUI Handler's slow path with a describe/analyze
// prompt, used when the active app isn't a browser/PDF reader or structural
// extraction failed.
func (h *Handler) visionPath(ctx context.Context, u types.Utterance, start time.Time) types.HandlerResult {
	h.Audio.AnalyzingScreen(ctx)

	result, err := h.Vision.CaptureAndAnalyze(ctx, "Describe and answer: "+u.Text)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(aurerrors.ErrReasoningUnavailable.Code).Inc()
		h.Audio.EnhancedError(ctx, "I couldn't read the screen.", "qa")
		return types.HandlerResult{
			Status: types.StatusError, Method: types.MethodSlowPath,
			Err: aurerrors.Wrap(aurerrors.ErrReasoningUnavailable, err), CorrelationID: u.ID,
			Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
		}
	}

	h.Audio.Conversational(ctx, result.Description)
	metrics.HandlerDuration.WithLabelValues(string(types.QuestionAnswering), string(types.MethodSlowPath), string(types.StatusSuccess)).
		Observe(h.clock().Now().Sub(start).Seconds())
	return types.HandlerResult{
		Status: types.StatusSuccess, Method: types.MethodSlowPath,
		Payload: result.Description, CorrelationID: u.ID,
		Timings: map[string]time.Duration{"total": h.clock().Now().Sub(start)},
	}
}

// buildSummaryPrompt tailors the summarization instruction to how the
// question was phrased.
func buildSummaryPrompt(question, content string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "key point") || strings.Contains(q, "bullet"):
		return fmt.Sprintf("Summarize the following as a concise bullet list of key points:\n\n%s", content)
	case strings.Contains(q, "summarize") || strings.Contains(q, "summary"):
		return fmt.Sprintf("Write a concise summary of the following:\n\n%s", content)
	default:
		return fmt.Sprintf("Describe what's on screen based on the following visible text:\n\n%s", content)
	}
}

var symbolRun = regexp.MustCompile(`[^\w\s]{6,}`)

// passesQualityGate rejects extraction results that are too short or read
// as UI chrome rather than article content.
func passesQualityGate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minExtractedChars {
		return false
	}
	if len(strings.Fields(trimmed)) < minExtractedWords {
		return false
	}
	if symbolRun.MatchString(trimmed) {
		return false
	}
	lower := strings.ToLower(trimmed)
	chromeHits := 0
	for _, phrase := range noiseChromePhrases {
		if strings.Contains(lower, phrase) {
			chromeHits++
		}
	}
	return chromeHits < 2
}

// normalizeWhitespace collapses every run of whitespace, newlines
// included, to a single space; paragraph breaks are not kept.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// truncateAtBoundary returns s truncated to at most maxBytes, cutting at
// the nearest preceding sentence or word boundary rather than mid-word.
func truncateAtBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := s[:maxBytes]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > 0 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return cut[:idx]
	}
	return cut
}

// fallbackSummary returns the first sentences of text capped at maxWords,
// used when the reasoning collaborator fails to summarize.
func fallbackSummary(text string, maxWords int) string {
	fields := strings.Fields(text)
	if len(fields) <= maxWords {
		return strings.Join(fields, " ")
	}
	out := strings.Join(fields[:maxWords], " ")
	if idx := strings.LastIndexAny(out, ".!?"); idx > 0 {
		return out[:idx+1]
	}
	return out
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

func (h *Handler) extractionBudget() time.Duration {
	if h.ExtractionBudget > 0 {
		return h.ExtractionBudget
	}
	return 2 * time.Second
}

func (h *Handler) summarizeBudget() time.Duration {
	if h.SummarizeBudget > 0 {
		return h.SummarizeBudget
	}
	return 3 * time.Second
}
