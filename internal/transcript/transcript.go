// Package transcript logs completed conversation turns to per-session
// NDJSON files. Writing is asynchronous: turns are queued and flushed by a
// single background writer, and the queue drops on overflow rather than
// block the conversation path.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/copilot-widget/internal/session"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Entry is one completed turn as written to disk.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources,omitempty"`
}

// Logger records completed turns. It satisfies the session recorder
// contract; RecordTurn never blocks.
type Logger struct {
	dir   string
	log   *slog.Logger
	queue chan Entry

	mu     sync.Mutex
	files  map[string]*os.File
	done   chan struct{}
	closed bool
}

// New creates a transcript logger and starts its writer. A disabled config
// yields a nil *Logger, which is safe to use and records nothing.
func New(cfg Config, log *slog.Logger) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}

	l := &Logger{
		dir:   cfg.Dir,
		log:   log,
		queue: make(chan Entry, size),
		files: make(map[string]*os.File),
		done:  make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// RecordTurn queues one completed turn. Overflow drops the entry with a
// warning instead of blocking.
func (l *Logger) RecordTurn(sessionID, turnID, question, answer string, citations []session.Citation) {
	if l == nil {
		return
	}
	sources := make([]string, 0, len(citations))
	for _, c := range citations {
		sources = append(sources, c.SourceLocator)
	}
	entry := Entry{
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		TurnID:    turnID,
		Question:  question,
		Answer:    answer,
		Sources:   sources,
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	select {
	case l.queue <- entry:
	default:
		l.log.Warn("transcript queue full, dropping turn", "session_id", sessionID, "turn_id", turnID)
	}
}

// Close drains the queue and closes all session files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.queue)
	<-l.done

	var firstErr error
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.files, id)
	}
	return firstErr
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for entry := range l.queue {
		if err := l.write(entry); err != nil {
			l.log.Warn("transcript write failed", "session_id", entry.SessionID, "error", err)
		}
	}
}

func (l *Logger) write(entry Entry) error {
	f, err := l.file(entry.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

func (l *Logger) file(sessionID string) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.files[sessionID]; ok {
		return f, nil
	}
	path := filepath.Join(l.dir, sessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	l.files[sessionID] = f
	return f, nil
}
