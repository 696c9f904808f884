// Package audio implements the Audio-Feedback Façade: a priority queue
// over an AudioFeedbackSink that composes an optional sound effect with an
// optional TTS utterance, guarantees at most one active speaker, and
// silently degrades to sound-only when TTS fails.
package audio

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
)

// Priority orders pending announcements; higher values speak first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// Sound catalog — the fixed set of sound effects the façade may compose
// with speech.
const (
	SoundThinking = "thinking"
	SoundSuccess  = "success"
	SoundFailure  = "failure"
	SoundAlert    = "alert"
)

// Sink is the underlying device the façade drives.
type Sink interface {
	Play(ctx context.Context, soundID string) error
	Speak(ctx context.Context, text string) error
}

// announcement is one queued (sound, speech) pair. done is closed once the
// drain loop has spoken (or failed to speak) this announcement, letting
// the enqueuing goroutine block without polling.
type announcement struct {
	priority Priority
	seq      int
	sound    string
	text     string
	done     chan struct{}
}

// pq is a container/heap priority queue ordered by priority desc, then
// insertion order asc (FIFO within a priority band).
type pq []*announcement

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q pq) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x any)   { *q = append(*q, x.(*announcement)) }
func (q *pq) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Facade serializes announcements through Sink so at most one speaker is
// ever active, draining the highest-priority, oldest-queued announcement
// first.
type Facade struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	queue   pq
	nextSeq int
	draining bool
}

// New returns a Facade driving sink. logger may be nil, in which case
// slog.Default() is used.
func New(sink Sink, logger *slog.Logger) *Facade {
	return &Facade{sink: sink, logger: logger}
}

func (f *Facade) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.Default()
}

// enqueue adds ann to the queue and, if no drain loop is currently
// running, starts one. play blocks until ann has been spoken (or failed)
// so callers observe a synchronous announce semantics while still sharing
// the at-most-one-active-speaker guarantee across concurrent callers.
func (f *Facade) enqueue(ctx context.Context, priority Priority, sound, text string) {
	ann := &announcement{priority: priority, sound: sound, text: text, done: make(chan struct{})}

	f.mu.Lock()
	ann.seq = f.nextSeq
	f.nextSeq++
	heap.Push(&f.queue, ann)
	shouldDrain := !f.draining
	if shouldDrain {
		f.draining = true
	}
	f.mu.Unlock()

	if shouldDrain {
		go f.drain(ctx)
	}

	<-ann.done
}

func (f *Facade) drain(ctx context.Context) {
	for {
		f.mu.Lock()
		if f.queue.Len() == 0 {
			f.draining = false
			f.mu.Unlock()
			return
		}
		ann := heap.Pop(&f.queue).(*announcement)
		f.mu.Unlock()

		f.speakOne(ctx, ann)
		close(ann.done)
	}
}

// speakOne plays the sound then the speech, if any, tolerating either
// failing independently: a failed sound still attempts speech, and a
// failed TTS call still counts as delivered feedback since the sound
// already played.
func (f *Facade) speakOne(ctx context.Context, ann *announcement) {
	if ann.sound != "" {
		if err := f.sink.Play(ctx, ann.sound); err != nil {
			f.log().Warn("audio: sound playback failed", "sound", ann.sound, "error", err)
		}
	}
	if ann.text != "" {
		if err := f.sink.Speak(ctx, ann.text); err != nil {
			f.log().Warn("audio: TTS failed, degrading to sound-only", "error", err)
		}
	}
}

// Conversational delivers a spoken reply at Normal priority with no sound
// effect.
func (f *Facade) Conversational(ctx context.Context, msg string) {
	f.enqueue(ctx, Normal, "", msg)
}

// AnalyzingScreen announces that a vision-based slow path is starting,
// used by the GUI and Question-Answering handlers before a screen capture.
func (f *Facade) AnalyzingScreen(ctx context.Context) {
	f.enqueue(ctx, Normal, SoundThinking, "Analyzing the screen.")
}

// DeferredInstructions announces what a click will do once a deferred
// action is armed, phrased by content type.
func (f *Facade) DeferredInstructions(ctx context.Context, contentType string) {
	msg := "Click where you want the content placed."
	if contentType == "CODE" {
		msg = "Click where you want the code placed."
	}
	f.enqueue(ctx, Normal, SoundThinking, msg)
}

// DeferredCompletion announces the outcome of a deferred placement.
func (f *Facade) DeferredCompletion(ctx context.Context, success bool, contentType string) {
	if success {
		msg := "Content placed."
		if contentType == "CODE" {
			msg = "Code placed."
		}
		f.enqueue(ctx, Low, SoundSuccess, msg)
		return
	}
	f.enqueue(ctx, High, SoundFailure, "Placement failed.")
}

// DeferredTimeout announces that a deferred action was canceled after
// elapsed without a click.
func (f *Facade) DeferredTimeout(ctx context.Context, elapsed string) {
	f.enqueue(ctx, High, SoundAlert, "No action received; canceled.")
}

// EnhancedError announces a failure with user-facing context.
func (f *Facade) EnhancedError(ctx context.Context, msg, userContext string) {
	f.enqueue(ctx, High, SoundFailure, msg)
}

// Success announces a routine success, optionally with a message.
func (f *Facade) Success(ctx context.Context, msg, userContext string) {
	f.enqueue(ctx, Low, SoundSuccess, msg)
}
