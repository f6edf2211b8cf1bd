// Package chat is the provider-agnostic adapter: it owns conversation state
// per container, injects the codebase context into every turn and hides
// three incompatible provider wire formats behind one call surface.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ilyra-ai/december/internal/metrics"
	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/providers"
	"github.com/ilyra-ai/december/internal/providers/registry"
	"github.com/ilyra-ai/december/internal/session"
	"github.com/ilyra-ai/december/internal/settings"
	"github.com/ilyra-ai/december/internal/storage"
)

// FallbackResponse replaces empty model output; the adapter never appends an
// empty assistant message.
const FallbackResponse = "Sorry, I could not generate a response."

type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type ContextSource interface {
	SystemPrompt(ctx context.Context, containerID string) (string, error)
}

type AuditLog interface {
	LogAction(ctx context.Context, e storage.AuditEntry) error
}

// BuildFunc turns the active settings into a provider transport. It is a
// field so tests can substitute fake providers.
type BuildFunc func(cfg settings.Settings) providers.Provider

type Service struct {
	sessions *session.Store
	settings SettingsSource
	context  ContextSource
	audit    AuditLog
	build    BuildFunc
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Config struct {
	Sessions   *session.Store
	Settings   SettingsSource
	Context    ContextSource
	Audit      AuditLog
	HTTPClient *http.Client
	Build      BuildFunc
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	build := cfg.Build
	if build == nil {
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 120 * time.Second}
		}
		build = func(s settings.Settings) providers.Provider {
			return registry.Build(registry.BuildOptions{
				Provider:   s.Provider,
				APIKey:     s.APIKey,
				BaseURL:    s.BaseURL,
				HTTPClient: httpClient,
			})
		}
	}
	return &Service{
		sessions: cfg.Sessions,
		settings: cfg.Settings,
		context:  cfg.Context,
		audit:    cfg.Audit,
		build:    build,
		logger:   cfg.Logger,
		metrics:  m,
	}
}

// SendMessage runs one non-streaming turn. On any failure past the user
// append the user message stays in history; only the assistant reply is
// missing, so the user can retry.
func (s *Service) SendMessage(ctx context.Context, containerID, text string, attachments []model.Attachment) (model.Message, model.Message, error) {
	mu := s.sessions.Lock(containerID)
	mu.Lock()
	defer mu.Unlock()
	s.metrics.ChatRequests.Inc()

	sess := s.sessions.GetOrCreate(containerID)
	userMsg := newMessage(model.RoleUser, text, attachments)
	updated, err := s.sessions.Append(sess.ID, userMsg)
	if err != nil {
		return model.Message{}, model.Message{}, err
	}

	req, cfg, err := s.buildRequest(ctx, containerID, updated.Messages)
	if err != nil {
		s.metrics.ChatFailures.Inc()
		return userMsg, model.Message{}, err
	}

	resp, err := s.build(cfg).Chat(ctx, req)
	if err != nil {
		s.metrics.ChatFailures.Inc()
		s.logger.Error().Err(err).Str("container_id", containerID).Str("provider", cfg.Provider).Msg("provider call failed")
		return userMsg, model.Message{}, err
	}

	assistant := newMessage(model.RoleAssistant, orFallback(resp.Text), nil)
	if _, err := s.sessions.Append(sess.ID, assistant); err != nil {
		return userMsg, model.Message{}, err
	}
	s.logAction(ctx, containerID, "chat_send", cfg)
	return userMsg, assistant, nil
}

// SendMessageStream runs one turn with incremental delivery. The returned
// channel is closed when the sequence ends; a sequence that ends without a
// done event failed, and the assistant message was not appended.
func (s *Service) SendMessageStream(ctx context.Context, containerID, text string, attachments []model.Attachment) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)

		mu := s.sessions.Lock(containerID)
		mu.Lock()
		defer mu.Unlock()
		s.metrics.ChatRequests.Inc()

		sess := s.sessions.GetOrCreate(containerID)
		userMsg := newMessage(model.RoleUser, text, attachments)
		updated, err := s.sessions.Append(sess.ID, userMsg)
		if err != nil {
			return
		}

		// The user echo goes out before any network call.
		if !emit(ctx, events, Event{Type: EventUser, Data: userMsg}) {
			return
		}

		req, cfg, err := s.buildRequest(ctx, containerID, updated.Messages)
		if err != nil {
			s.metrics.ChatFailures.Inc()
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("stream setup failed")
			return
		}

		provider := s.build(cfg)
		if sp, ok := provider.(providers.StreamingProvider); ok {
			s.streamTurn(ctx, events, sess.ID, containerID, cfg, sp, req)
			return
		}
		s.degenerateTurn(ctx, events, sess.ID, containerID, cfg, provider, req)
	}()
	return events
}

// streamTurn delivers genuine token-level increments. The assistant id is
// fixed before the first chunk; every event carries the accumulated text.
func (s *Service) streamTurn(ctx context.Context, events chan<- Event, sessionID, containerID string, cfg settings.Settings, sp providers.StreamingProvider, req providers.Request) {
	assistantID := uuid.NewString()
	var buf strings.Builder

	err := sp.ChatStream(ctx, req, func(delta string) error {
		buf.WriteString(delta)
		s.metrics.StreamChunks.Inc()
		snapshot := model.Message{
			ID:        assistantID,
			Role:      model.RoleAssistant,
			Content:   buf.String(),
			Timestamp: time.Now().UTC(),
		}
		if !emit(ctx, events, Event{Type: EventAssistant, Data: snapshot}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		s.metrics.ChatFailures.Inc()
		s.logger.Error().Err(err).Str("container_id", containerID).Str("provider", cfg.Provider).Msg("stream failed")
		return
	}

	final := model.Message{
		ID:        assistantID,
		Role:      model.RoleAssistant,
		Content:   orFallback(buf.String()),
		Timestamp: time.Now().UTC(),
	}
	if _, err := s.sessions.Append(sessionID, final); err != nil {
		return
	}
	s.logAction(ctx, containerID, "chat_stream", cfg)
	emit(ctx, events, Event{Type: EventDone, Data: final})
}

// degenerateTurn wraps the single-shot call in the three-event sequence so
// callers see one protocol regardless of provider capability.
func (s *Service) degenerateTurn(ctx context.Context, events chan<- Event, sessionID, containerID string, cfg settings.Settings, provider providers.Provider, req providers.Request) {
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		s.metrics.ChatFailures.Inc()
		s.logger.Error().Err(err).Str("container_id", containerID).Str("provider", cfg.Provider).Msg("provider call failed")
		return
	}

	assistant := newMessage(model.RoleAssistant, orFallback(resp.Text), nil)
	if _, err := s.sessions.Append(sessionID, assistant); err != nil {
		return
	}
	s.logAction(ctx, containerID, "chat_stream", cfg)
	if !emit(ctx, events, Event{Type: EventAssistant, Data: assistant}) {
		return
	}
	emit(ctx, events, Event{Type: EventDone, Data: assistant})
}

// buildRequest resolves settings and the codebase context for a turn. The
// request's last message is the session's freshly appended user turn, which
// the Gemini transport relies on when splitting history from the new turn.
func (s *Service) buildRequest(ctx context.Context, containerID string, history []model.Message) (providers.Request, settings.Settings, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return providers.Request{}, settings.Settings{}, err
	}
	system, err := s.context.SystemPrompt(ctx, containerID)
	if err != nil {
		return providers.Request{}, settings.Settings{}, err
	}
	return providers.Request{
		Model:       cfg.Model,
		System:      system,
		Temperature: cfg.Temperature,
		Messages:    history,
	}, cfg, nil
}

func (s *Service) logAction(ctx context.Context, containerID, action string, cfg settings.Settings) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]string{"provider": cfg.Provider, "model": cfg.Model})
	if err := s.audit.LogAction(ctx, storage.AuditEntry{
		ContainerID: containerID,
		Action:      action,
		MetaJSON:    string(meta),
	}); err != nil {
		s.logger.Warn().Err(err).Str("container_id", containerID).Msg("audit log failed")
	}
}

func newMessage(role model.Role, text string, attachments []model.Attachment) model.Message {
	msg := model.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	if len(attachments) > 0 {
		msg.Attachments = attachments
	}
	return msg
}

func orFallback(text string) string {
	if strings.TrimSpace(text) == "" {
		return FallbackResponse
	}
	return text
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
