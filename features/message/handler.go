package message

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ragfinance/internal/domain"
	"ragfinance/internal/middleware"
)

const maxBodyBytes = 1 << 20

const StatusProcessing = "processing"

type Submitter interface {
	Submit(ctx context.Context, question string) (string, error)
}

type Handler struct {
	submitter Submitter
}

func NewHandler(s Submitter) *Handler {
	return &Handler{submitter: s}
}

type Request struct {
	Question *string `json:"question"`
}

type Ack struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Question == nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "question is required", http.StatusUnprocessableEntity)
		return
	}

	taskID, err := h.submitter.Submit(ctx, *req.Question)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.ErrorContext(ctx, "failed to submit question", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(Ack{TaskID: taskID, Status: StatusProcessing}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
