// Package api provides HTTP handlers for CoachPipe endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CoachPipe/internal/flow"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/google/uuid"
)

// chatStreamHandler handles POST /chat/stream: it runs one turn and streams
// client events as SSE data lines, terminated by [DONE]. Title summarization
// runs in the background after the terminal marker.
func (s *Server) chatStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatStreamHandler: processing stream request", "path", r.URL.Path)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatStreamHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatStreamHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Server.chatStreamHandler: streaming unsupported by response writer")
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(models.ErrStreamUnsupported.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(data string) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	writeJSON := func(v interface{}) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return writeEvent(string(payload))
	}

	// The thread id is announced first so new conversations learn their id
	// before any deltas arrive.
	if err := writeJSON(struct {
		Type     string `json:"type"`
		ThreadID string `json:"thread_id"`
	}{Type: "thread", ThreadID: threadID}); err != nil {
		slog.Warn("Server.chatStreamHandler: client gone before stream start", "error", err)
		return
	}

	emit := func(ev flow.Event) error {
		ce, ok := flow.ClientEvent(ev)
		if !ok {
			return nil
		}
		return writeJSON(ce)
	}

	if _, err := s.workflow.RunTurn(r.Context(), threadID, req.Messages, emit); err != nil {
		// Headers are long gone; the stream terminates abruptly and the
		// client sees the missing [DONE] as the failure signal.
		slog.Error("Server.chatStreamHandler: turn failed", "error", err, "threadID", threadID)
		return
	}

	if err := writeEvent(models.StreamDone); err != nil {
		slog.Warn("Server.chatStreamHandler: failed to write terminal marker", "error", err)
		return
	}

	go s.summarizeInBackground(threadID)
}

// summarizeInBackground rewrites the thread title after a completed turn.
// Failures are logged and never surface to the client.
func (s *Server) summarizeInBackground(threadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultSummarizeTimeout)
	defer cancel()
	if err := s.workflow.SummarizeThread(ctx, threadID); err != nil {
		slog.Warn("Server.summarizeInBackground: summarization failed", "error", err, "threadID", threadID)
	}
}

// chatHandler handles POST /chat, the synchronous variant: the full turn runs
// without streaming and the updated history is returned in one response.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "path", r.URL.Path)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}

	state, err := s.workflow.RunTurn(r.Context(), threadID, req.Messages, nil)
	if err != nil {
		slog.Error("Server.chatHandler: turn failed", "error", err, "threadID", threadID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process chat turn"))
		return
	}

	go s.summarizeInBackground(threadID)

	writeJSONResponse(w, http.StatusOK, models.Success(models.ChatResponse{
		ThreadID: threadID,
		Messages: state.Messages,
	}))
}

// listThreadsHandler handles GET /chat/threads.
func (s *Server) listThreadsHandler(w http.ResponseWriter, r *http.Request) {
	threads, err := s.st.ListThreads(r.Context())
	if err != nil {
		slog.Error("Server.listThreadsHandler: failed to list threads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list threads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"threads": threads}))
}

// historyHandler handles GET /chat/history/{thread_id}. Unknown threads
// return an empty message list, not an error.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if threadID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyThreadID.Error()))
		return
	}
	state, err := s.st.LoadLatestState(r.Context(), threadID)
	if err != nil {
		slog.Error("Server.historyHandler: failed to load state", "error", err, "threadID", threadID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load history"))
		return
	}
	messages := []models.ChatMessage{}
	if state != nil {
		messages = state.Messages
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"messages": messages}))
}

// deleteThreadHandler handles DELETE /chat/threads/{thread_id}.
func (s *Server) deleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if threadID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyThreadID.Error()))
		return
	}
	if err := s.st.DeleteThread(r.Context(), threadID); err != nil {
		slog.Error("Server.deleteThreadHandler: delete failed", "error", err, "threadID", threadID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete thread"))
		return
	}
	slog.Info("Server.deleteThreadHandler: thread deleted", "threadID", threadID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Thread deleted", nil))
}

// deleteAllThreadsHandler handles DELETE /chat/threads.
func (s *Server) deleteAllThreadsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DeleteAllThreads(r.Context()); err != nil {
		slog.Error("Server.deleteAllThreadsHandler: delete failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete threads"))
		return
	}
	slog.Info("Server.deleteAllThreadsHandler: all threads deleted")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("All threads deleted", nil))
}

// getProfileHandler handles GET /profile.
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.st.GetProfile(r.Context())
	if err != nil {
		slog.Error("Server.getProfileHandler: failed to load profile", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load profile"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// updateProfileHandler handles PUT /profile.
func (s *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.updateProfileHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	params := models.UpdateProfileParams{
		KnowledgeSummary: req.KnowledgeSummary,
		LearningGoals:    req.LearningGoals,
	}
	if err := params.Validate(); err != nil {
		slog.Warn("Server.updateProfileHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpsertProfile(r.Context(), req.KnowledgeSummary, req.LearningGoals); err != nil {
		slog.Error("Server.updateProfileHandler: upsert failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update profile"))
		return
	}
	slog.Info("Server.updateProfileHandler: profile updated")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile updated", nil))
}
