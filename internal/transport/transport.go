// Package transport connects the widget to a backend assistant.
//
// Two adapters implement the same contract: a persistent websocket that
// delivers the answer as a stream of tagged frames, and a request/response
// HTTP client that resolves each question to a single final event. The
// adapters only decode and tag what arrives on the wire; deciding whether an
// event still belongs to a live turn is the conversation session's job.
package transport

import (
	"context"
	"errors"
)

// Sentinel errors returned by Send.
var (
	// ErrNotConnected is returned when a send is attempted without a live
	// connection or configured endpoint.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("transport: closed")
)

// EventType tags an inbound assistant event.
type EventType string

const (
	// EventStreaming carries one partial fragment of an in-progress answer.
	EventStreaming EventType = "streaming"
	// EventEndOfStream carries the final answer text and citation metadata.
	EventEndOfStream EventType = "end_of_stream"
	// EventEndOfRAGStreaming marks the end of the retrieval phase. Carries
	// no payload and is ignored by the session.
	EventEndOfRAGStreaming EventType = "end_of_rag_streaming"
	// EventError signals that the backend failed to produce an answer.
	EventError EventType = "error"
)

// RawCitation is citation metadata exactly as the backend sends it.
type RawCitation struct {
	SourceFilePath string `json:"source_file_path"`
}

// Event is one tagged assistant event.
type Event struct {
	Type      EventType
	Text      string
	Citations []RawCitation
}

// QA is one completed question/answer pair of the conversation history.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Handler receives inbound events. Handlers are invoked from the adapter's
// delivery goroutine, one event at a time, in wire order.
type Handler func(Event)

// ConnState describes the adapter's connection lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the lowercase name of the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the adapter contract shared by both wire modes.
type Transport interface {
	// Connect establishes the connection where the mode needs one. It is
	// idempotent; the websocket adapter also starts its reconnect loop here.
	Connect(ctx context.Context) error

	// Send transmits one question. The streaming adapter sends the session
	// identity and question; the request/response adapter additionally
	// carries the derived conversation history. Send never blocks on the
	// answer: results arrive through the event handler.
	Send(ctx context.Context, sessionID, question string, history []QA) error

	// OnEvent registers the handler for inbound events. Must be called
	// before Connect.
	OnEvent(Handler)

	// State returns the current connection state.
	State() ConnState

	// Close tears the transport down. No events are delivered afterwards.
	Close() error
}
