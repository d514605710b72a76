package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jardiel79162-commits/remixhub/internal/auth"
	"github.com/jardiel79162-commits/remixhub/internal/service"
)

// RemixHandler exposes the remix engine and the history viewer.
type RemixHandler struct {
	remixSvc *service.RemixService
	logger   *slog.Logger
}

// NewRemixHandler creates a RemixHandler.
func NewRemixHandler(remixSvc *service.RemixService, logger *slog.Logger) *RemixHandler {
	return &RemixHandler{
		remixSvc: remixSvc,
		logger:   logger,
	}
}

// HandleRemix starts a remix job and streams its progress.
//
// HTTP: POST /api/remix (requires auth)
// BODY: {"sourceRepo": ..., "targetRepo": ..., "sourceToken": ..., "targetToken": ...}
//
// RESPONSE — TWO SHAPES:
//   - Rejected before the job starts (validation/quota/credits): a plain JSON
//     error body with a 4xx status. No stream, no history record.
//   - Admitted: a text/event-stream of JSON frames, one per progress event:
//     data: {"log":"..."}   zero or more
//     data: {"done":true}   success terminal, OR
//     data: {"error":"..."} failure terminal — exactly one, always last.
//
// Each event is flushed the instant the orchestrator produces it — no
// buffering across log lines, so the client sees progress live.
func (h *RemixHandler) HandleRemix(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req service.RemixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	events, err := h.remixSvc.Remix(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	// From here on the response is a stream — status and headers are
	// committed before the first event.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	// The producer goroutine runs to completion no matter what happens to
	// this connection, so we ALWAYS drain the channel. If the client went
	// away, writes fail silently and we keep draining — the job still
	// persists its terminal state.
	clientGone := false
	for event := range events {
		if clientGone {
			continue
		}

		frame, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to encode remix event", slog.String("error", err.Error()))
			continue
		}

		if _, err := w.Write(append(append([]byte("data: "), frame...), '\n', '\n')); err != nil {
			h.logger.Warn("remix stream client disconnected", slog.String("userID", userID))
			clientGone = true
			continue
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// HandleHistoryList returns the user's remix history, newest first.
//
// HTTP: GET /api/remix/history?limit=20&offset=0 (requires auth)
func (h *RemixHandler) HandleHistoryList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := h.remixSvc.ListHistory(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// HandleHistoryGet returns one history record with its full transcript.
//
// HTTP: GET /api/remix/history/{id} (requires auth)
func (h *RemixHandler) HandleHistoryGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	job, err := h.remixSvc.GetHistory(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// HandleHistoryDelete removes one history record.
//
// HTTP: DELETE /api/remix/history/{id} (requires auth)
func (h *RemixHandler) HandleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	if err := h.remixSvc.DeleteHistory(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
