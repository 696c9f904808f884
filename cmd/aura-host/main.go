// Command aura-host is the entry point for the AURA orchestrator process.
// It loads configuration, wires up the capability collaborators and the
// orchestrator core, starts the introspection HTTP server, and handles
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/normanking/aura-orchestrator/internal/audio"
	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/collab/automation"
	"github.com/normanking/aura-orchestrator/internal/collab/browserextract"
	"github.com/normanking/aura-orchestrator/internal/collab/rpcclient"
	"github.com/normanking/aura-orchestrator/internal/concurrency"
	"github.com/normanking/aura-orchestrator/internal/config"
	"github.com/normanking/aura-orchestrator/internal/handlers"
	"github.com/normanking/aura-orchestrator/internal/handlers/conversation"
	"github.com/normanking/aura-orchestrator/internal/handlers/deferred"
	"github.com/normanking/aura-orchestrator/internal/handlers/gui"
	"github.com/normanking/aura-orchestrator/internal/handlers/qa"
	"github.com/normanking/aura-orchestrator/internal/intent"
	"github.com/normanking/aura-orchestrator/internal/introspect"
	"github.com/normanking/aura-orchestrator/internal/logging"
	"github.com/normanking/aura-orchestrator/internal/orchestrator"
	"github.com/normanking/aura-orchestrator/internal/store"
	"github.com/normanking/aura-orchestrator/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("aura-host", pflag.ContinueOnError)
	cfgPath := flags.String("config", "config/aura.yaml", "path to aura.yaml")
	reasoningURL := flags.String("reasoning-url", "ws://127.0.0.1:8700/ws", "reasoning collaborator WebSocket URL")
	visionURL := flags.String("vision-url", "ws://127.0.0.1:8701/ws", "vision collaborator WebSocket URL")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	cfg, err := config.Load(*cfgPath, flags)
	if err != nil {
		return fmt.Errorf("loading config %q: %w", *cfgPath, err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}

	logger.Info("configuration loaded",
		"config", *cfgPath,
		"confidence_threshold", cfg.Intent.ConfidenceThreshold,
		"introspect_bind", cfg.Introspect.Bind, "introspect_port", cfg.Introspect.Port,
	)

	reasoning := rpcclient.NewReasoningClient(rpcclient.ReasoningConfig{BaseURL: *reasoningURL})
	vision := rpcclient.NewVisionClient(rpcclient.VisionConfig{BaseURL: *visionURL})
	browser := newBrowserExtractor(cfg.QA)
	nativeAutomation := automation.NewOSAutomation(unsupportedNative{})
	audioFacade := audio.New(unsupportedSink{logger: logger}, logger)
	clock := collab.SystemClock{}

	ledger, err := store.NewLedger(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening audit ledger: %w", err)
	}

	var historyMirror conversation.HistoryMirror
	if cfg.Store.RedisAddr != "" {
		cache, err := store.NewHistoryCache(cfg.Store.RedisAddr, cfg.Store.RedisDB, 24*time.Hour)
		if err != nil {
			logger.Warn("conversation history cache unavailable, continuing without it", "error", err)
		} else {
			historyMirror = cache
			defer cache.Close()
		}
	}

	guiHandler := &gui.Handler{
		Accessibility:       unsupportedAccessibility{},
		Vision:              vision,
		Automation:          nativeAutomation,
		Audio:               audioFacade,
		Clock:               clock,
		Logger:              logger,
		FuzzyMatchThreshold: cfg.GUI.FuzzyMatchThreshold,
		RetryMax:            cfg.FastPath.RetryMax,
		BackoffBase:         time.Duration(cfg.FastPath.BackoffBaseMs) * time.Millisecond,
	}

	qaHandler := &qa.Handler{
		Accessibility:    unsupportedAccessibility{},
		Browser:          browser,
		PDF:              unsupportedPDFExtractor{},
		Vision:           vision,
		Reasoning:        reasoning,
		Audio:            audioFacade,
		Clock:            clock,
		Logger:           logger,
		ExtractionBudget: time.Duration(cfg.QA.ExtractionBudgetMs) * time.Millisecond,
		SummarizeBudget:  time.Duration(cfg.QA.SummarizeBudgetMs) * time.Millisecond,
	}

	conversationHandler := &conversation.Handler{
		Reasoning:  reasoning,
		Audio:      audioFacade,
		Mirror:     historyMirror,
		Clock:      clock,
		Logger:     logger,
		HistoryMax: cfg.Conversation.HistoryMax,
	}
	if err := conversationHandler.Rehydrate(context.Background()); err != nil {
		logger.Warn("conversation history rehydration failed, starting empty", "error", err)
	}

	execLock := concurrency.NewExecutionLock()

	deferredHandler := &deferred.Handler{
		Reasoning:           reasoning,
		Mouse:               unsupportedMouseCapture{},
		Automation:          nativeAutomation,
		Lock:                execLock,
		Audio:               audioFacade,
		Clock:               clock,
		Logger:              logger,
		ReAcquireTimeout:    time.Duration(cfg.Deferred.ReAcquireTimeoutSeconds) * time.Second,
		Timeout:             time.Duration(cfg.Deferred.TimeoutDefaultSeconds) * time.Second,
		TimeoutMin:          time.Duration(cfg.Deferred.TimeoutMinSeconds) * time.Second,
		TimeoutMax:          time.Duration(cfg.Deferred.TimeoutMaxSeconds) * time.Second,
		PasteThresholdChars: cfg.Deferred.PasteThresholdChars,
	}

	registry := handlers.NewRegistry(guiHandler, qaHandler, conversationHandler, deferredHandler)

	orc := &orchestrator.Orchestrator{
		Recognizer: &intent.Recognizer{
			Reasoning:           reasoning,
			Lock:                intent.NewIntentLock(),
			Logger:              logger,
			IntentLockTimeout:   time.Duration(cfg.Intent.LockTimeoutSeconds) * time.Second,
			ConfidenceThreshold: cfg.Intent.ConfidenceThreshold,
		},
		Registry:             registry,
		Lock:                 execLock,
		Ledger:               ledger,
		Logger:               logger,
		ExecutionLockTimeout: time.Duration(cfg.Concurrency.ExecutionLockTimeoutSeconds) * time.Second,
	}

	introspectSrv := introspect.New(introspect.Config{
		Bind: cfg.Introspect.Bind, Port: cfg.Introspect.Port,
		ShutdownTimeoutSeconds: cfg.Introspect.ShutdownTimeoutSeconds,
	}, orc, ledger, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := introspectSrv.ListenAndServe(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("signal received, shutting down", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("introspection server error: %w", err)
	}

	if err := introspectSrv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newBrowserExtractor picks the Q&A handler's BrowserExtractor strategy
// per cfg.BrowserStrategy: "http" fetches the page with a plain HTTP
// client and parses it with goquery, "cdp" reads an already-open tab's
// rendered DOM over the Chrome DevTools protocol via go-rod. Load's
// validation guarantees BrowserStrategy is one of these two values.
func newBrowserExtractor(cfg config.QAConfig) collab.BrowserExtractor {
	if cfg.BrowserStrategy == "cdp" {
		return browserextract.NewCDPExtractor(cfg.CDPControlURL)
	}
	return browserextract.NewHTTPExtractor(nil)
}

// unsupportedNative, unsupportedAccessibility, unsupportedMouseCapture,
// unsupportedPDFExtractor, and unsupportedSink stand in for the
// collaborators this module deliberately leaves unimplemented: OS input
// injection, accessibility-tree traversal, global mouse-click capture, PDF
// text extraction, and the audio feedback device. Each requires a
// platform-specific integration (CGEventCreateMouseEvent / SendInput /
// XTest, an OS accessibility API, a native PDF library, and an audio
// output device) with no portable Go equivalent in this module's
// dependency set; they fail loudly rather than silently no-op so a real
// platform binding can be swapped in without hunting for a hidden no-op.
type unsupportedNative struct{}

func (unsupportedNative) Click(context.Context, types.Rect, string, int) error {
	return fmt.Errorf("automation: native click is not implemented on this platform")
}

func (unsupportedNative) Type(context.Context, string) error {
	return fmt.Errorf("automation: native type is not implemented on this platform")
}

func (unsupportedNative) Scroll(context.Context, types.Rect, float64, float64) error {
	return fmt.Errorf("automation: native scroll is not implemented on this platform")
}

func (unsupportedNative) Key(context.Context, []string, string) error {
	return fmt.Errorf("automation: native key press is not implemented on this platform")
}

func (unsupportedNative) TriggerPasteKeystroke(context.Context) error {
	return fmt.Errorf("automation: native paste keystroke is not implemented on this platform")
}

type unsupportedAccessibility struct{}

func (unsupportedAccessibility) DetectActiveApp(context.Context) (types.ApplicationInfo, error) {
	return types.ApplicationInfo{}, fmt.Errorf("accessibility: active-app detection is not implemented on this platform")
}

func (unsupportedAccessibility) FindElements(context.Context, string, string, string) ([]types.Element, error) {
	return nil, fmt.Errorf("accessibility: element lookup is not implemented on this platform")
}

func (unsupportedAccessibility) FindScrollableRegions(context.Context, string) ([]types.Element, error) {
	return nil, fmt.Errorf("accessibility: scrollable-region lookup is not implemented on this platform")
}

type unsupportedMouseCapture struct{}

func (unsupportedMouseCapture) SubscribeSingleClick(context.Context, string) (<-chan types.Rect, error) {
	return nil, fmt.Errorf("mouse capture: global click subscription is not implemented on this platform")
}

func (unsupportedMouseCapture) Cancel(string) {}

type unsupportedPDFExtractor struct{}

func (unsupportedPDFExtractor) ExtractText(context.Context, types.ApplicationInfo) (string, error) {
	return "", fmt.Errorf("pdf extraction: no PDF library is wired on this platform")
}

type unsupportedSink struct {
	logger *slog.Logger
}

func (s unsupportedSink) Play(ctx context.Context, soundID string) error {
	s.logger.Warn("audio playback is not wired to a platform sink, dropping cue", "sound_id", soundID)
	return nil
}

func (s unsupportedSink) Speak(ctx context.Context, text string) error {
	s.logger.Warn("speech synthesis is not wired to a platform sink, dropping utterance", "text", text)
	return nil
}
