package session

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Citation is a reference to a source document surfaced alongside an
// assistant answer.
type Citation struct {
	SourceLocator string
	Label         string
}

// Message is one entry of the conversation log. Messages are immutable once
// their turn closes; only the assistant message of the open turn is updated
// in place while its answer accumulates.
type Message struct {
	ID        string
	Sender    Sender
	Content   string
	Citations []Citation
	CreatedAt time.Time
}

// Snapshot is the render-ready view handed to the presentation layer. HTML
// is the formatted content of the most recent assistant message; empty HTML
// with IsStreaming set means the host should show a loading indicator.
type Snapshot struct {
	Messages    []Message
	HTML        string
	IsStreaming bool
	Citations   []Citation
}
