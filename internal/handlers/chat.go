package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bedrock-chat-gateway/internal/llm"
	"bedrock-chat-gateway/pkg/logging/logging"
)

const (
	invalidMessageText   = "Message is required and must be a non-empty string."
	modelNotReadyCode    = "MODEL_NOT_READY"
	modelNotReadyText    = "AIモデルが準備できていません。約1分後に再度お試しください。"
	genericServerErrText = "An unexpected server error occurred."
)

// Replier generates the reply for one message. *chat.Service satisfies it.
type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ChatHandler holds dependencies for the /api/chat endpoint.
type ChatHandler struct {
	Replier Replier
	// ExposeErrors returns internal error messages to the client. Off in
	// production.
	ExposeErrors bool
}

func NewChatHandler(replier Replier, exposeErrors bool) *ChatHandler {
	return &ChatHandler{
		Replier:      replier,
		ExposeErrors: exposeErrors,
	}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		logger.Warn("invalid request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: invalidMessageText})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		logger.Info("validation error: missing or blank message")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: invalidMessageText})
		return
	}

	reply, err := h.Replier.Reply(ctx, message)
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// writeError maps core failures onto HTTP outcomes. Only a not-ready model
// gets its own status and text; everything else is a 500.
func (h *ChatHandler) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if llm.IsModelNotReady(err) {
		logger.Warn("model not ready, sending 503", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   modelNotReadyCode,
			Message: modelNotReadyText,
		})
		return
	}

	logger.Error("chat request failed", zap.Error(err))

	msg := genericServerErrText
	if h.ExposeErrors {
		msg = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
