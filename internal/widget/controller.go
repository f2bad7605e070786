// Package widget is the embedder-facing façade over the conversation
// runtime: open/close state, the unread badge, suggested questions, and the
// single entry points for sending messages and starting fresh chats.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ashureev/copilot-widget/internal/config"
	"github.com/ashureev/copilot-widget/internal/markdown"
	"github.com/ashureev/copilot-widget/internal/session"
	"github.com/ashureev/copilot-widget/internal/transport"
)

// ErrBusy is returned by SendMessage while a previous question is still
// being answered.
var ErrBusy = session.ErrTurnOpen

// badgeCap is the largest count the unread badge shows literally.
const badgeCap = 9

// Options wires a Controller.
type Options struct {
	Transport transport.Transport
	// Formatter defaults to the markdown pipeline.
	Formatter session.Formatter
	// OnRender receives every render-ready snapshot.
	OnRender func(session.Snapshot)
	// Recorder is optional.
	Recorder session.Recorder
	// Appearance carries the embedder's presentation settings.
	Appearance config.WidgetConfig
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Controller is the widget runtime façade. It owns the session and the
// transport; embedders interact only through it.
type Controller struct {
	transport transport.Transport
	session   *session.Session
	appear    config.WidgetConfig
	log       *slog.Logger

	mu        sync.Mutex
	open      bool
	connected bool
	unread    int
}

// New creates a controller. Nothing connects until the first Open.
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	formatter := opts.Formatter
	if formatter == nil {
		formatter = markdown.New()
	}

	c := &Controller{
		transport: opts.Transport,
		appear:    opts.Appearance,
		log:       log,
	}
	c.session = session.New(session.Config{
		Transport:      opts.Transport,
		Formatter:      formatter,
		OnRender:       opts.OnRender,
		RenderInterval: opts.Appearance.RenderInterval,
		Recorder:       opts.Recorder,
		Logger:         log,
	})
	opts.Transport.OnEvent(func(ev transport.Event) {
		// Stale events are discarded by the session and must not surface,
		// so only consumed completions may bump the badge.
		applied := c.session.ApplyEvent(ev)
		if applied && (ev.Type == transport.EventEndOfStream || ev.Type == transport.EventError) {
			c.noteCompletion()
		}
	})
	return c
}

// NewFromConfig builds the transport named by the configuration and wraps
// it in a controller.
func NewFromConfig(cfg config.WidgetConfig, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Transport {
	case config.TransportHTTP:
		opts.Transport = transport.NewClient(transport.ClientConfig{
			URL:     cfg.APIURL,
			Timeout: cfg.RequestTimeout,
			Logger:  log,
		})
	default:
		opts.Transport = transport.NewSocket(transport.SocketConfig{
			URL:            cfg.SocketURL,
			Bot:            cfg.Bot,
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         log,
		})
	}
	opts.Appearance = cfg
	return New(opts)
}

// Open marks the widget visible, clears the unread badge, and on first use
// establishes the session identity and the transport connection.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = true
	c.unread = 0
	needsConnect := !c.connected
	c.mu.Unlock()

	c.session.EnsureIdentity()
	if !needsConnect {
		return nil
	}
	if err := c.transport.Connect(ctx); err != nil {
		// Roll back so a later Open retries the connection.
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		return fmt.Errorf("open widget: %w", err)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Close hides the widget. The conversation and connection are kept so a
// reopen resumes where the user left off.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// Toggle flips visibility and reports the new state.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	if open {
		c.Close()
		return false, nil
	}
	return true, c.Open(ctx)
}

// IsOpen reports whether the widget is visible.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// IsConnected reports whether the transport currently holds a live
// connection.
func (c *Controller) IsConnected() bool {
	return c.transport.State() == transport.StateConnected
}

// SendMessage submits one user question. ErrBusy is returned while the
// previous answer is still streaming.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	_, err := c.session.StartTurn(ctx, text)
	return err
}

// StartNewChat abandons any in-flight answer and begins an empty
// conversation under a fresh session identity.
func (c *Controller) StartNewChat() {
	c.session.StartNewChat()
}

// ShowBadge sets the unread count directly, for hosts that track unread
// state themselves. Negative counts clear the badge.
func (c *Controller) ShowBadge(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count < 0 {
		count = 0
	}
	c.unread = count
}

// Badge returns the unread indicator text: empty when nothing is unread,
// the count up to the cap, then "9+".
func (c *Controller) Badge() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.unread == 0:
		return ""
	case c.unread > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(c.unread)
	}
}

// SuggestedQuestions returns the embedder-configured question shortcuts
// shown on an empty conversation.
func (c *Controller) SuggestedQuestions() []string {
	return c.appear.SuggestedQuestions
}

// SessionID exposes the current conversation identity, or "" before the
// first open.
func (c *Controller) SessionID() string {
	return c.session.ID()
}

// Shutdown releases the transport. The controller must not be used after.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	c.open = false
	c.connected = false
	c.mu.Unlock()
	return c.transport.Close()
}

// noteCompletion bumps the unread badge for answers that finish while the
// widget is hidden.
func (c *Controller) noteCompletion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		c.unread++
	}
}
