package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultReconnectDelay is the fixed backoff between reconnect attempts
// after an abnormal close.
const DefaultReconnectDelay = 3 * time.Second

// SocketConfig configures the streaming websocket adapter.
type SocketConfig struct {
	// URL is the websocket endpoint of the assistant.
	URL string
	// Bot is the bot name sent with every question.
	Bot string
	// ReconnectDelay overrides DefaultReconnectDelay when positive.
	ReconnectDelay time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Socket is the streaming transport adapter. It holds one persistent
// websocket connection, decodes inbound frames into tagged events, and
// reconnects after a fixed backoff whenever the connection is lost with a
// non-normal closure code.
type Socket struct {
	cfg   SocketConfig
	delay time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   ConnState
	handler Handler
	cancel  context.CancelFunc
	closed  bool
}

// NewSocket creates a streaming adapter. Connect must be called before Send.
func NewSocket(cfg SocketConfig) *Socket {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Socket{cfg: cfg, delay: delay, log: log, state: StateDisconnected}
}

// socketFrame is one inbound wire frame.
type socketFrame struct {
	Type              string        `json:"type"`
	Message           string        `json:"message"`
	Content           string        `json:"content"`
	SpecificCitations []RawCitation `json:"specific_citations"`
}

// event maps a wire frame to a tagged event. Unknown frame types are dropped.
func (f socketFrame) event() (Event, bool) {
	text := f.Message
	if text == "" {
		text = f.Content
	}
	switch EventType(f.Type) {
	case EventStreaming:
		return Event{Type: EventStreaming, Text: text}, true
	case EventEndOfStream:
		return Event{Type: EventEndOfStream, Text: text, Citations: f.SpecificCitations}, true
	case EventEndOfRAGStreaming:
		return Event{Type: EventEndOfRAGStreaming}, true
	case EventError:
		return Event{Type: EventError}, true
	default:
		return Event{}, false
	}
}

// socketQuestion is the outbound question frame.
type socketQuestion struct {
	Bot       string `json:"bot"`
	ChatterID string `json:"chatter_id"`
	Question  string `json:"question"`
}

// OnEvent registers the inbound event handler.
func (s *Socket) OnEvent(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Connect dials the assistant and starts the read loop. The first dial is
// synchronous so callers learn immediately whether the endpoint is
// reachable; once connected, lost connections are re-dialed in the
// background until Close.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.dial(ctx); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("connect assistant socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.state = StateConnected
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Send transmits one question frame. The conversation history is not sent in
// streaming mode: the backend tracks context by session identity.
func (s *Socket) Send(ctx context.Context, sessionID, question string, _ []QA) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(socketQuestion{
		Bot:       s.cfg.Bot,
		ChatterID: sessionID,
		Question:  question,
	})
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send question: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (s *Socket) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the reconnect loop and closes the connection with a normal
// closure code.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	cancel := s.cancel
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "widget closed")
	}
	return nil
}

func (s *Socket) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// run reads frames until the connection dies, then decides between staying
// down (normal closure) and reconnecting after the fixed backoff.
func (s *Socket) run(ctx context.Context) {
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			s.log.Info("assistant socket closed normally")
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateDisconnected)
		s.log.Warn("assistant socket lost", "error", err, "retry_in", s.delay)

		if !s.redial(ctx) {
			return
		}
	}
}

// redial retries the dial every backoff interval until it succeeds or the
// transport is closed. Returns false when the transport is shutting down.
func (s *Socket) redial(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.delay):
		}

		s.setState(StateConnecting)
		if err := s.dial(ctx); err != nil {
			s.log.Warn("assistant socket reconnect failed", "error", err, "retry_in", s.delay)
			s.setState(StateDisconnected)
			continue
		}
		s.setState(StateConnected)
		s.log.Info("assistant socket reconnected")
		return true
	}
}

func (s *Socket) readLoop(ctx context.Context) error {
	for {
		s.mu.Lock()
		conn := s.conn
		handler := s.handler
		s.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame socketFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("discarding malformed assistant frame", "error", err)
			continue
		}

		ev, ok := frame.event()
		if !ok {
			s.log.Debug("discarding unknown assistant frame", "type", frame.Type)
			continue
		}
		if handler != nil {
			handler(ev)
		}
	}
}

func (s *Socket) setState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = state
}
