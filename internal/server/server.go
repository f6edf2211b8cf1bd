package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ilyra-ai/december/internal/chat"
	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/settings"
)

// ChatService is the slice of the chat adapter the HTTP layer needs.
type ChatService interface {
	SendMessage(ctx context.Context, containerID, text string, attachments []model.Attachment) (model.Message, model.Message, error)
	SendMessageStream(ctx context.Context, containerID, text string, attachments []model.Attachment) <-chan chat.Event
}

type SettingsService interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, patch settings.Patch) (settings.Settings, error)
}

type SessionSource interface {
	GetOrCreate(containerID string) model.ChatSession
}

type Server struct {
	chat     ChatService
	settings SettingsService
	sessions SessionSource
	logger   zerolog.Logger
}

type Config struct {
	Chat     ChatService
	Settings SettingsService
	Sessions SessionSource
	Logger   zerolog.Logger
}

func New(cfg Config) *Server {
	return &Server{
		chat:     cfg.Chat,
		settings: cfg.Settings,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat/{containerID}", s.handleGetSession)
	mux.HandleFunc("POST /api/chat/{containerID}", s.handleSendMessage)
	mux.HandleFunc("POST /api/chat/{containerID}/stream", s.handleStreamMessage)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
}

type chatRequest struct {
	Message     string             `json:"message"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

type chatResponse struct {
	UserMessage      model.Message `json:"userMessage"`
	AssistantMessage model.Message `json:"assistantMessage"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	if containerID == "" {
		writeError(w, http.StatusBadRequest, "containerID is required")
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.GetOrCreate(containerID))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	userMsg, assistant, err := s.chat.SendMessage(r.Context(), containerID, req.Message, req.Attachments)
	if err != nil {
		s.logger.Error().Err(err).Str("container_id", containerID).Msg("chat send failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{UserMessage: userMsg, AssistantMessage: assistant})
}

// handleStreamMessage replies as server-sent events. Every event is a full
// message snapshot; a stream that ends without a "done" event failed.
func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.chat.SendMessageStream(r.Context(), containerID, req.Message, req.Attachments) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error().Err(err).Msg("marshal stream event")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.Get(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load settings")
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	cfg.APIKey = maskKey(cfg.APIKey)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg, err := s.settings.Update(r.Context(), patch)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("update settings")
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	cfg.APIKey = maskKey(cfg.APIKey)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	containerID := r.PathValue("containerID")
	if containerID == "" {
		writeError(w, http.StatusBadRequest, "containerID is required")
		return chatRequest{}, false
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return chatRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return chatRequest{}, false
	}
	return req, true
}

func isValidationError(err error) bool {
	return errors.Is(err, settings.ErrUnknownProvider) ||
		errors.Is(err, settings.ErrEmptyAPIKey) ||
		errors.Is(err, settings.ErrEmptyModel) ||
		errors.Is(err, settings.ErrTemperatureRange)
}

// maskKey keeps the last four characters so the UI can show which key is
// active without ever returning the secret.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
