package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/copilot-widget/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewHandler(config.SimulatorConfig{}, nil, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestSendMessageAnswersScriptedTopic(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/send_message", "application/json",
		strings.NewReader(`{"user_question":"what do your plans cost?"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Answer, "Plans") {
		t.Errorf("answer = %q, want the pricing script", body.Answer)
	}
	if len(body.SpecificCitations) == 0 {
		t.Error("scripted answer carried no citations")
	}
}

func TestSendMessageEchoesUnknownTopic(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/send_message", "application/json",
		strings.NewReader(`{"user_question":"zzz unmatched topic"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var body sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Answer, "zzz unmatched topic") {
		t.Errorf("echo answer = %q", body.Answer)
	}
	if len(body.SpecificCitations) != 0 {
		t.Errorf("echo answer carried citations: %v", body.SpecificCitations)
	}
}

func TestSendMessageRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	for name, payload := range map[string]string{
		"malformed json": `{"user_question":`,
		"empty question": `{"user_question":"  "}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/send_message", "application/json", strings.NewReader(payload))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSocketStreamsAnswer(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	question := `{"bot":"copilot","chatter_id":"sess-1","question":"how do I install?"}`
	if err := ws.Write(ctx, websocket.MessageText, []byte(question)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var streamed strings.Builder
	sawRAGEnd := false
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame socketFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		switch frame.Type {
		case "streaming":
			streamed.WriteString(frame.Message)
		case "end_of_rag_streaming":
			sawRAGEnd = true
		case "end_of_stream":
			if !sawRAGEnd {
				t.Error("end_of_stream arrived before end_of_rag_streaming")
			}
			if streamed.String() != frame.Message {
				t.Errorf("streamed chunks %q do not reassemble the final text %q",
					streamed.String(), frame.Message)
			}
			if !strings.Contains(frame.Message, "Getting started") {
				t.Errorf("final text = %q, want the install script", frame.Message)
			}
			if len(frame.SpecificCitations) == 0 {
				t.Error("final frame carried no citations")
			}
			return
		default:
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
	}
}

func TestSocketRejectsMalformedFrame(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"question":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame socketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Type != "error" {
		t.Errorf("frame type = %q, want error", frame.Type)
	}
}

func TestChunksReassemble(t *testing.T) {
	tests := []string{
		"one two three",
		"line one\nline two\n\npara",
		"",
		"single",
		"  leading and trailing  ",
	}
	for _, text := range tests {
		if got := strings.Join(chunks(text), ""); got != text {
			t.Errorf("chunks(%q) reassembles to %q", text, got)
		}
	}
}

func TestScriptLookup(t *testing.T) {
	s := DefaultScript()
	tests := []struct {
		question string
		wantIn   string
	}{
		{"Tell me about PRICING please", "Plans"},
		{"when is support open?", "Monday to Friday"},
		{"I hit an error", "status page"},
		{"completely unrelated", "do not have a scripted answer"},
	}
	for _, tt := range tests {
		got := s.Lookup(tt.question)
		if !strings.Contains(got.Markdown, tt.wantIn) {
			t.Errorf("Lookup(%q) = %q, want substring %q", tt.question, got.Markdown, tt.wantIn)
		}
	}
}
