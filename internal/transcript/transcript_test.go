package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/copilot-widget/internal/session"
)

func TestLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.RecordTurn("sess-1", "turn-1", "what is covered", "Everything under the plan.",
		[]session.Citation{{SourceLocator: "docs/plan.md"}})

	path := filepath.Join(dir, "sess-1.ndjson")
	line := waitForLine(t, path)
	var got Entry
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal transcript line: %v", err)
	}
	if got.TurnID != "turn-1" || got.Question != "what is covered" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0] != "docs/plan.md" {
		t.Fatalf("unexpected sources: %v", got.Sources)
	}
}

func TestLoggerSeparatesSessions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.RecordTurn("sess-a", "turn-1", "qa", "aa", nil)
	logger.RecordTurn("sess-b", "turn-2", "qb", "ab", nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, id := range []string{"sess-a", "sess-b"} {
		data, err := os.ReadFile(filepath.Join(dir, id+".ndjson"))
		if err != nil {
			t.Fatalf("read %s transcript: %v", id, err)
		}
		if got := len(strings.Split(strings.TrimSpace(string(data)), "\n")); got != 1 {
			t.Errorf("%s has %d lines, want 1", id, got)
		}
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 64}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		logger.RecordTurn("sess-1", "turn", "q", "a", nil)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.ndjson"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if got := len(strings.Split(strings.TrimSpace(string(data)), "\n")); got != 20 {
		t.Errorf("transcript has %d lines, want 20", got)
	}
}

func TestDisabledLoggerIsInert(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: false}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger != nil {
		t.Fatal("disabled config returned a live logger")
	}
	// Nil receivers must be safe.
	logger.RecordTurn("sess", "turn", "q", "a", nil)
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 4}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.RecordTurn("sess-x", "turn", "q", "a", nil)

	if _, err := os.Stat(filepath.Join(dir, "sess-x.ndjson")); !os.IsNotExist(err) {
		t.Error("turn recorded after Close")
	}
}

func waitForLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for transcript file %s", path)
	return ""
}
