package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/copilot-widget/internal/config"
)

// Handler serves the simulator's two endpoints: the request/response
// send-message API and the streaming websocket.
type Handler struct {
	script *Script
	typing time.Duration
	jitter time.Duration
	log    *slog.Logger
}

// NewHandler creates a simulator handler.
func NewHandler(cfg config.SimulatorConfig, script *Script, log *slog.Logger) *Handler {
	if script == nil {
		script = DefaultScript()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		script: script,
		typing: cfg.TypingSpeed,
		jitter: cfg.JitterMax,
		log:    log,
	}
}

// RegisterRoutes mounts the simulator endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/send_message", h.HandleSendMessage)
	r.Get("/ws", h.HandleSocket)
}

type sendMessageRequest struct {
	UserQuestion               string `json:"user_question"`
	PreviousQuestionAnswerList []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"previous_question_answer_list"`
}

type citation struct {
	SourceFilePath string `json:"source_file_path"`
}

type sendMessageResponse struct {
	Answer            string     `json:"answer"`
	SpecificCitations []citation `json:"specific_citations,omitempty"`
}

// HandleSendMessage answers one question in a single response.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if strings.TrimSpace(req.UserQuestion) == "" {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "user_question is required"})
		return
	}

	answer := h.script.Lookup(req.UserQuestion)
	h.log.Info("answering question",
		"mode", "http",
		"history_len", len(req.PreviousQuestionAnswerList))

	JSON(w, http.StatusOK, sendMessageResponse{
		Answer:            answer.Markdown,
		SpecificCitations: toCitations(answer.Sources),
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

type socketQuestion struct {
	Bot       string `json:"bot"`
	ChatterID string `json:"chatter_id"`
	Question  string `json:"question"`
}

type socketFrame struct {
	Type              string     `json:"type"`
	Message           string     `json:"message,omitempty"`
	SpecificCitations []citation `json:"specific_citations,omitempty"`
}

// HandleSocket upgrades to a websocket and answers each question frame as a
// stream of typed chunks followed by the terminal frames.
func (h *Handler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.log.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				h.log.Debug("websocket read ended", "error", err)
			}
			return
		}

		var q socketQuestion
		if err := json.Unmarshal(data, &q); err != nil || strings.TrimSpace(q.Question) == "" {
			if writeErr := writeFrame(ctx, ws, socketFrame{Type: "error", Message: "malformed question frame"}); writeErr != nil {
				return
			}
			continue
		}

		h.log.Info("answering question", "mode", "socket", "bot", q.Bot, "chatter_id", q.ChatterID)
		if err := h.streamAnswer(ctx, ws, h.script.Lookup(q.Question)); err != nil {
			h.log.Debug("streaming aborted", "error", err)
			return
		}
	}
}

// streamAnswer types the answer out word by word, then sends the terminal
// frames carrying the full text and its citations.
func (h *Handler) streamAnswer(ctx context.Context, ws *websocket.Conn, answer Answer) error {
	for _, chunk := range chunks(answer.Markdown) {
		if err := writeFrame(ctx, ws, socketFrame{Type: "streaming", Message: chunk}); err != nil {
			return err
		}
		if err := h.pause(ctx); err != nil {
			return err
		}
	}

	if err := writeFrame(ctx, ws, socketFrame{Type: "end_of_rag_streaming"}); err != nil {
		return err
	}
	return writeFrame(ctx, ws, socketFrame{
		Type:              "end_of_stream",
		Message:           answer.Markdown,
		SpecificCitations: toCitations(answer.Sources),
	})
}

func (h *Handler) pause(ctx context.Context) error {
	delay := h.typing
	if h.jitter > 0 {
		delay += rand.N(h.jitter)
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame socketFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// chunks splits text into word-sized stream chunks, each keeping its
// trailing whitespace so concatenation reproduces the source exactly.
func chunks(text string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !isSpace {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func toCitations(sources []string) []citation {
	if len(sources) == 0 {
		return nil
	}
	out := make([]citation, len(sources))
	for i, s := range sources {
		out[i] = citation{SourceFilePath: s}
	}
	return out
}
