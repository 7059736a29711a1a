package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragfinance/features/run"
	"ragfinance/internal/middleware"
)

type RunRepo interface {
	Stats(ctx context.Context) (run.Stats, error)
}

type Handler struct {
	runRepo RunRepo
}

func NewHandler(r RunRepo) *Handler {
	return &Handler{runRepo: r}
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	s, err := h.runRepo.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count runs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": s}); err != nil {
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
