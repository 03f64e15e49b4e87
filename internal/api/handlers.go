package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/3ndigital/professor/internal/models"
	"github.com/go-chi/chi/v5"
)

// handleAudio serves one synthesized audio file by name.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		slog.Warn("Server rejected audio filename", "filename", filename)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid filename"))
		return
	}

	path := filepath.Join(s.audioDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, models.Error("Audio file not found"))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

// handleListConversations returns conversation summaries, optionally
// filtered by status.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	status := models.ConversationStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidConversationStatus(status) {
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}

	summaries, err := s.store.ListConversations(status)
	if err != nil {
		slog.Error("Server failed to list conversations", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(summaries))
}

// handleConversationMessages returns a conversation's messages in
// chronological order.
func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := s.store.GetConversation(conversationID); err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSON(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server failed to load conversation", "error", err, "conversation_id", conversationID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}

	messages, err := s.store.ListMessages(conversationID)
	if err != nil {
		slog.Error("Server failed to list messages", "error", err, "conversation_id", conversationID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(messages))
}

// handleResetConversation completes the conversation and clears the
// owner's level, progress and study plan so the next inbound event starts
// a fresh assessment.
func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSON(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server failed to load conversation", "error", err, "conversation_id", conversationID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}

	if err := s.store.SetConversationStatus(conv.ID, models.ConversationCompleted); err != nil {
		slog.Error("Server failed to complete conversation", "error", err, "conversation_id", conv.ID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}

	level := models.LevelUnassigned
	progress := 0
	plan := ""
	if err := s.store.UpdateUser(conv.UserID, models.UserUpdate{Level: &level, Progress: &progress, StudyPlan: &plan}); err != nil {
		slog.Error("Server failed to clear user assessment", "error", err, "user_id", conv.UserID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}

	slog.Info("Server reset conversation", "conversation_id", conv.ID, "user_id", conv.UserID)
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Conversation reset successfully", nil))
}

// handleGetUser returns one user by id, including level and study plan.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUser(userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, models.Error("User not found"))
			return
		}
		slog.Error("Server failed to load user", "error", err, "user_id", userID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load user"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(user))
}
