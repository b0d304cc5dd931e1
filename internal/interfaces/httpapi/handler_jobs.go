package httpapi

import (
	"fmt"
	"net/http"

	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

type flushSyncOutboxRequest struct {
	IntentID  string `json:"intent_id"`
	SessionID string `json:"session_id"`
}

// RunFlushSyncOutboxJob is the delayed-job callback published after a failed
// step sync. A session_id limits the flush to that session.
func (h *Handler) RunFlushSyncOutboxJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunFlushSyncOutboxJob")
	defer span.End()

	if h.syncOutbox == nil {
		writeError(ctx, w, fmt.Errorf("%w: sync outbox is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	var req flushSyncOutboxRequest
	if err := h.decodeJSON(r, &req, true); err != nil {
		writeError(ctx, w, err)
		return
	}

	var (
		result usecase.FlushResult
		err    error
	)
	if req.SessionID != "" {
		result, err = h.syncOutbox.FlushSession(ctx, req.SessionID)
	} else {
		result, err = h.syncOutbox.Flush(ctx)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "flush sync outbox job failed", "intent_id", req.IntentID, "session_id", req.SessionID, "error", err)
		writeError(ctx, w, err)
		return
	}

	h.logger.InfoContext(ctx, "flush sync outbox job finished",
		"intent_id", req.IntentID,
		"delivered", result.Delivered,
		"rescheduled", result.Rescheduled,
		"abandoned", result.Abandoned,
	)
	writeSuccess(ctx, w, http.StatusOK, result)
}
