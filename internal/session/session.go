// Package session owns the conversation state machine: the ordered message
// log, the open turn's accumulation buffer, and the staleness rules that
// decide whether an inbound transport event still matters.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/copilot-widget/internal/identity"
	"github.com/ashureev/copilot-widget/internal/render"
	"github.com/ashureev/copilot-widget/internal/transport"
)

// Sentinel errors returned by StartTurn.
var (
	// ErrTurnOpen rejects a new turn while another is still streaming.
	ErrTurnOpen = errors.New("session: a turn is already open")
	// ErrEmptyQuestion rejects blank input.
	ErrEmptyQuestion = errors.New("session: question is empty")
)

// Fixed user-facing replies for locally closed turns.
const (
	errorReply       = "Sorry, I encountered an error. Please try again."
	unavailableReply = "Sorry, the assistant is unavailable right now. Please try again later."
)

// Formatter turns raw assistant text into a render-ready HTML fragment.
type Formatter interface {
	Format(raw string) string
}

// Recorder observes completed turns. Implementations must not block.
type Recorder interface {
	RecordTurn(sessionID, turnID, question, answer string, citations []Citation)
}

// Config wires a Session.
type Config struct {
	Transport transport.Transport
	Formatter Formatter
	// OnRender receives every render-ready snapshot. Called from transport
	// and timer goroutines, never concurrently with itself for one session
	// under the one-open-turn discipline.
	OnRender func(Snapshot)
	// RenderInterval throttles streaming renders; zero means the default.
	RenderInterval time.Duration
	// Recorder is optional.
	Recorder Recorder
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the authoritative conversation state machine. All mutation
// happens under one mutex; transport events, timer callbacks, and user
// intents are applied one at a time in arrival order.
type Session struct {
	transport transport.Transport
	format    Formatter
	onRender  func(Snapshot)
	throttle  *render.Throttler
	recorder  Recorder
	log       *slog.Logger

	mu           sync.Mutex
	id           string
	messages     []Message
	activeTurnID string
	streaming    bool
	buffer       strings.Builder
	question     string
}

// New creates an empty session. The session identity is established lazily
// by EnsureIdentity or the first turn.
func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		transport: cfg.Transport,
		format:    cfg.Formatter,
		onRender:  cfg.OnRender,
		throttle:  render.NewThrottler(cfg.RenderInterval),
		recorder:  cfg.Recorder,
		log:       log,
	}
}

// EnsureIdentity generates the session identity if none exists yet and
// returns it.
func (s *Session) EnsureIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		s.id = identity.NewSessionID()
	}
	return s.id
}

// ID returns the current session identity, or "" before the first open.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsStreaming reports whether a turn is open.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// StartTurn opens a new turn: it appends the user message and an empty
// assistant placeholder, then hands the question to the transport together
// with the history of completed turns. At most one turn may be open;
// a second call returns ErrTurnOpen and changes nothing.
//
// A transport send failure closes the turn immediately with a fixed
// user-facing reply — sends are never retried.
func (s *Session) StartTurn(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return "", ErrTurnOpen
	}
	if s.id == "" {
		s.id = identity.NewSessionID()
	}

	history := s.historyLocked()
	turnID := identity.NewTurnID()
	now := time.Now()
	s.messages = append(s.messages,
		Message{ID: identity.NewMessageID(), Sender: SenderUser, Content: question, CreatedAt: now},
		Message{ID: identity.NewMessageID(), Sender: SenderAssistant, CreatedAt: now},
	)
	s.activeTurnID = turnID
	s.streaming = true
	s.question = question
	s.buffer.Reset()
	sessionID := s.id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)

	if err := s.transport.Send(ctx, sessionID, question, history); err != nil {
		s.log.Warn("question could not be sent", "turn_id", turnID, "error", err)
		s.closeTurnWithReply(turnID, unavailableReply)
		return turnID, err
	}
	return turnID, nil
}

// ApplyEvent applies one transport event to the open turn and reports
// whether the event was consumed. Events arriving with no open turn belong
// to an abandoned one and are silently discarded; discarded events and the
// payload-free retrieval marker report false.
func (s *Session) ApplyEvent(ev transport.Event) bool {
	if ev.Type == transport.EventEndOfRAGStreaming {
		return false
	}

	s.mu.Lock()
	if s.activeTurnID == "" {
		s.mu.Unlock()
		s.log.Debug("discarding stale assistant event", "type", string(ev.Type))
		return false
	}

	switch ev.Type {
	case transport.EventStreaming:
		s.buffer.WriteString(ev.Text)
		if msg := s.openAssistantLocked(); msg != nil {
			msg.Content = s.buffer.String()
		}
		s.mu.Unlock()
		s.throttle.Schedule(s.renderCurrent)
		return true

	case transport.EventEndOfStream:
		// The transport-provided full text wins over the accumulated buffer.
		final := ev.Text
		if final == "" {
			final = s.buffer.String()
		}
		citations := ExtractCitations(ev.Citations)
		if msg := s.openAssistantLocked(); msg != nil {
			msg.Content = final
			msg.Citations = citations
		}
		turnID := s.activeTurnID
		question := s.question
		sessionID := s.id
		s.activeTurnID = ""
		s.streaming = false
		snap := s.snapshotLocked()
		s.mu.Unlock()

		if s.recorder != nil {
			s.recorder.RecordTurn(sessionID, turnID, question, final, citations)
		}
		s.throttle.Flush(func() { s.emit(snap) })
		return true

	case transport.EventError:
		if msg := s.openAssistantLocked(); msg != nil {
			msg.Content = errorReply
			msg.Citations = nil
		}
		s.activeTurnID = ""
		s.streaming = false
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.throttle.Discard()
		s.emit(snap)
		return true

	default:
		s.mu.Unlock()
		return false
	}
}

// StartNewChat abandons any open turn, clears the log, and generates a
// fresh session identity. Late events for the abandoned turn fall to the
// staleness guard in ApplyEvent.
func (s *Session) StartNewChat() {
	s.mu.Lock()
	abandoned := s.activeTurnID
	s.activeTurnID = ""
	s.streaming = false
	s.messages = nil
	s.buffer.Reset()
	s.question = ""
	s.id = identity.NewSessionID()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.throttle.Discard()
	if abandoned != "" {
		s.log.Info("open turn abandoned by new chat", "turn_id", abandoned)
	}
	s.emit(snap)
}

// closeTurnWithReply resolves the turn locally with a fixed reply, if it is
// still the open one.
func (s *Session) closeTurnWithReply(turnID, reply string) {
	s.mu.Lock()
	if s.activeTurnID != turnID {
		s.mu.Unlock()
		return
	}
	if msg := s.openAssistantLocked(); msg != nil {
		msg.Content = reply
		msg.Citations = nil
	}
	s.activeTurnID = ""
	s.streaming = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.throttle.Discard()
	s.emit(snap)
}

// historyLocked derives the request/response conversation history: every
// completed question/answer pair, oldest first. The open turn never appears
// because it is appended after this runs.
func (s *Session) historyLocked() []transport.QA {
	var history []transport.QA
	for i := 0; i+1 < len(s.messages); i++ {
		if s.messages[i].Sender != SenderUser {
			continue
		}
		answer := s.messages[i+1]
		if answer.Sender != SenderAssistant || answer.Content == "" {
			continue
		}
		history = append(history, transport.QA{
			Question: s.messages[i].Content,
			Answer:   answer.Content,
		})
	}
	return history
}

// openAssistantLocked returns the assistant message of the open turn, which
// is always the last log entry while streaming.
func (s *Session) openAssistantLocked() *Message {
	if len(s.messages) == 0 {
		return nil
	}
	last := &s.messages[len(s.messages)-1]
	if last.Sender != SenderAssistant {
		return nil
	}
	return last
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{Messages: msgs, IsStreaming: s.streaming}
}

// renderCurrent is the throttled render path: it re-reads state at fire
// time so the newest buffer content always wins.
func (s *Session) renderCurrent() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// emit fills in the formatted view of the most recent assistant message and
// hands the snapshot to the presentation callback.
func (s *Session) emit(snap Snapshot) {
	if s.onRender == nil {
		return
	}
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Sender != SenderAssistant {
			continue
		}
		if s.format != nil {
			snap.HTML = s.format.Format(snap.Messages[i].Content)
		}
		snap.Citations = snap.Messages[i].Citations
		break
	}
	s.onRender(snap)
}
