// Package types holds the data model shared across the AURA orchestrator:
// the immutable Utterance record, the recognized Intent, the HandlerResult
// envelope every handler returns, the Deferred Action pending record and
// state enum, bounded conversation history, and the narrow shapes the core
// needs from the application-detection and accessibility collaborators.
package types

import (
	"time"

	"github.com/google/uuid"
)

// IntentKind enumerates the four command categories AURA recognizes.
type IntentKind string

const (
	GUIInteraction      IntentKind = "GUI_INTERACTION"
	QuestionAnswering   IntentKind = "QUESTION_ANSWERING"
	ConversationalChat  IntentKind = "CONVERSATIONAL_CHAT"
	DeferredActionIntent IntentKind = "DEFERRED_ACTION"
)

// Utterance is an immutable record of one recognized voice command. ID is
// a monotonically-useful correlation identifier present in every log line
// and every returned envelope for this command.
type Utterance struct {
	ID         string
	Text       string
	ReceivedAt time.Time
}

// NewUtterance stamps text with a fresh correlation ID and the current
// time.
func NewUtterance(text string) Utterance {
	return Utterance{
		ID:         uuid.NewString(),
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// Intent is the normalized output of intent recognition.
type Intent struct {
	Kind       IntentKind
	Confidence float64
	Parameters map[string]any
	Fallback   bool
	Reason     string
}

// Status enumerates the outcome of a handler invocation.
type Status string

const (
	StatusSuccess              Status = "SUCCESS"
	StatusError                Status = "ERROR"
	StatusWaitingForUserAction Status = "WAITING_FOR_USER_ACTION"
)

// Method enumerates which execution strategy produced a HandlerResult.
type Method string

const (
	MethodFastPath     Method = "FAST_PATH"
	MethodSlowPath     Method = "SLOW_PATH"
	MethodDeferred     Method = "DEFERRED"
	MethodConversation Method = "CONVERSATION"
)

// HandlerResult is the canonical envelope every handler returns to the
// Orchestrator. Status == StatusWaitingForUserAction may only be produced
// by the Deferred Action Handler, and only once a DeferredPending has been
// published atomically to the state machine.
type HandlerResult struct {
	Status        Status
	Method        Method
	Payload       string
	Err           error
	Timings       map[string]time.Duration
	CorrelationID string
}

// ContentType enumerates the kind of artifact a Deferred Action generates,
// driving both generation prompt selection and post-processing rules.
type ContentType string

const (
	ContentCode  ContentType = "CODE"
	ContentText  ContentType = "TEXT"
	ContentOther ContentType = "OTHER"
)

// DeferredState enumerates the lifecycle of a deferred action.
// IDLE → PREPARING → WAITING → EXECUTING → (IDLE|FAILED)
type DeferredState int32

const (
	DeferredIdle DeferredState = iota
	DeferredPreparing
	DeferredWaiting
	DeferredExecuting
	DeferredFailed
)

func (s DeferredState) String() string {
	switch s {
	case DeferredIdle:
		return "IDLE"
	case DeferredPreparing:
		return "PREPARING"
	case DeferredWaiting:
		return "WAITING"
	case DeferredExecuting:
		return "EXECUTING"
	case DeferredFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DeferredPending is the single globally-owned record of an armed deferred
// action. It is created when content generation succeeds and consumed
// exactly once by a click, a timeout, or an explicit cancel.
type DeferredPending struct {
	ID                     string
	Content                string
	ContentType            ContentType
	PreparedAt             time.Time
	TimeoutAt              time.Time
	MouseSubscriptionToken string
	CancelReason           string
}

// ConversationTurn is one entry in a ConversationHistory.
type ConversationTurn struct {
	Role    string
	Content string
	Ts      time.Time
}

// AppKind enumerates the broad category of the foreground application.
type AppKind string

const (
	AppBrowser    AppKind = "BROWSER"
	AppPDFReader  AppKind = "PDF_READER"
	AppTextEditor AppKind = "TEXT_EDITOR"
	AppOther      AppKind = "OTHER"
)

// BrowserType enumerates the browser engine, when AppKind == AppBrowser.
type BrowserType string

const (
	BrowserChrome  BrowserType = "CHROME"
	BrowserSafari  BrowserType = "SAFARI"
	BrowserFirefox BrowserType = "FIREFOX"
	BrowserOther   BrowserType = "OTHER"
)

// ApplicationInfo describes the detected foreground application.
type ApplicationInfo struct {
	Name            string
	BundleID        string
	Kind            AppKind
	BrowserType     BrowserType
	Confidence      float64
	DetectionMethod string
}

// Rect is an axis-aligned bounding box in screen coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (x, y float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Area returns the rectangle's area, used to break fuzzy-match ties.
func (r Rect) Area() float64 {
	return r.W * r.H
}

// Element is the core's narrow view of an accessibility or vision-detected
// UI element: a role string, optional labels, a bounding box, and an
// enabled flag. Extra carries collaborator-specific attributes the core
// does not interpret.
type Element struct {
	Role        string
	Title       string
	Description string
	Value       string
	Coordinates Rect
	Enabled     bool
	Extra       map[string]any
}
