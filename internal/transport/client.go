package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds a single request/response exchange. The
// backend has no streaming heartbeat in this mode, so an expired timeout is
// surfaced as an error event.
const DefaultRequestTimeout = 30 * time.Second

// noAnswerText is substituted when a response carries no recognizable
// answer field.
const noAnswerText = "Sorry, I could not generate a response."

// ClientConfig configures the request/response adapter.
type ClientConfig struct {
	// URL is the send-message endpoint of the assistant.
	URL string
	// Timeout overrides DefaultRequestTimeout when positive.
	Timeout time.Duration
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the request/response transport adapter. Each Send issues one
// POST carrying the question plus the derived conversation history and
// resolves to exactly one end-of-stream or error event.
type Client struct {
	cfg     ClientConfig
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	handler Handler
	state   ConnState
	closed  bool
	wg      sync.WaitGroup
}

// NewClient creates a request/response adapter.
func NewClient(cfg ClientConfig) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, client: client, timeout: timeout, log: log, state: StateDisconnected}
}

// questionPayload is the outbound request body.
type questionPayload struct {
	UserQuestion               string `json:"user_question"`
	PreviousQuestionAnswerList []QA   `json:"previous_question_answer_list,omitempty"`
}

// answerPayload tolerates the answer field name variants the backend emits.
type answerPayload struct {
	Answer            string        `json:"answer"`
	Response          string        `json:"response"`
	Message           string        `json:"message"`
	Content           string        `json:"content"`
	SpecificCitations []RawCitation `json:"specific_citations"`
	Citations         []RawCitation `json:"citations"`
}

func (p answerPayload) text() string {
	for _, s := range []string{p.Answer, p.Response, p.Message, p.Content} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p answerPayload) citationList() []RawCitation {
	if len(p.SpecificCitations) > 0 {
		return p.SpecificCitations
	}
	return p.Citations
}

// OnEvent registers the inbound event handler.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect verifies the endpoint is configured. No connection is held open in
// request/response mode.
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.cfg.URL == "" {
		return ErrNotConnected
	}
	c.state = StateConnected
	return nil
}

// Send issues the request in the background and returns immediately. The
// outcome arrives as one event: end-of-stream with the full answer, or error
// on any failure including the bounded-wait timeout.
func (c *Client) Send(ctx context.Context, _ string, question string, history []QA) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.deliver(c.exchange(ctx, question, history))
	}()
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close marks the adapter closed and waits for in-flight requests to drain.
// Their results are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosed
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) exchange(ctx context.Context, question string, history []QA) Event {
	body, err := json.Marshal(questionPayload{
		UserQuestion:               question,
		PreviousQuestionAnswerList: history,
	})
	if err != nil {
		c.log.Error("encode assistant request", "error", err)
		return Event{Type: EventError}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		c.log.Error("build assistant request", "error", err)
		return Event{Type: EventError}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("assistant request failed", "error", err)
		return Event{Type: EventError}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Debug("close assistant response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("assistant returned error status", "status", resp.StatusCode)
		return Event{Type: EventError}
	}

	var payload answerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Warn("decode assistant response", "error", err)
		return Event{Type: EventError}
	}

	text := payload.text()
	if text == "" {
		text = noAnswerText
	}
	return Event{Type: EventEndOfStream, Text: text, Citations: payload.citationList()}
}

func (c *Client) deliver(ev Event) {
	c.mu.Lock()
	handler := c.handler
	closed := c.closed
	c.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(ev)
}
