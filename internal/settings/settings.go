// Package settings owns the active provider configuration: which LLM backend
// to talk to, with which key, model and temperature. One configuration is
// active at a time.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ilyra-ai/december/internal/crypto"
	"github.com/ilyra-ai/december/internal/metrics"
	"github.com/ilyra-ai/december/internal/storage"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "google-gemini"
)

var (
	ErrUnknownProvider  = errors.New("provider must be one of openai, openrouter, anthropic, google-gemini")
	ErrEmptyAPIKey      = errors.New("apiKey must not be empty")
	ErrEmptyModel       = errors.New("model must not be empty")
	ErrTemperatureRange = errors.New("temperature must be between 0 and 2")
)

var defaultModels = map[string]string{
	ProviderOpenAI:     "gpt-4o",
	ProviderOpenRouter: "anthropic/claude-3.5-sonnet",
	ProviderAnthropic:  "claude-3-5-sonnet-20241022",
	ProviderGemini:     "gemini-2.0-flash",
}

type Settings struct {
	Provider    string   `json:"provider"`
	APIKey      string   `json:"apiKey"`
	BaseURL     string   `json:"baseUrl,omitempty"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	Provider    *string  `json:"provider"`
	APIKey      *string  `json:"apiKey"`
	BaseURL     *string  `json:"baseUrl"`
	Model       *string  `json:"model"`
	Temperature *float64 `json:"temperature"`
}

type Service struct {
	store   *storage.Store
	keyring *crypto.Keyring
	logger  zerolog.Logger
}

func NewService(store *storage.Store, keyring *crypto.Keyring, logger zerolog.Logger) *Service {
	return &Service{store: store, keyring: keyring, logger: logger}
}

// Get returns the active configuration, falling back to Gemini defaults with
// an empty key when nothing has been stored yet.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	row, err := s.store.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	apiKey := ""
	if strings.TrimSpace(row.EncAPIKey) != "" {
		apiKey, err = s.keyring.OpenString(row.EncAPIKey)
		if err != nil {
			return Settings{}, fmt.Errorf("decrypt api key: %w", err)
		}
	}

	return Settings{
		Provider:    row.Provider,
		APIKey:      apiKey,
		BaseURL:     row.BaseURL,
		Model:       row.Model,
		Temperature: row.Temperature,
	}, nil
}

// Update applies a partial patch, validates the result and persists it.
// Validation failures are returned to the caller; nothing is defaulted
// silently for required fields.
func (s *Service) Update(ctx context.Context, patch Patch) (Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	next := current
	if patch.Provider != nil {
		next.Provider = strings.TrimSpace(*patch.Provider)
		// Switching provider without naming a model picks that
		// provider's default model.
		if patch.Model == nil {
			next.Model = defaultModels[next.Provider]
		}
	}
	if patch.APIKey != nil {
		next.APIKey = strings.TrimSpace(*patch.APIKey)
	}
	if patch.BaseURL != nil {
		next.BaseURL = strings.TrimSpace(*patch.BaseURL)
	}
	if patch.Model != nil {
		next.Model = strings.TrimSpace(*patch.Model)
	}
	if patch.Temperature != nil {
		next.Temperature = patch.Temperature
	}

	if err := validate(next, patch); err != nil {
		return Settings{}, err
	}

	encKey := ""
	if next.APIKey != "" {
		encKey, err = s.keyring.SealString(next.APIKey)
		if err != nil {
			return Settings{}, fmt.Errorf("encrypt api key: %w", err)
		}
	}

	if err := s.store.UpsertSettings(ctx, storage.SettingsRow{
		Provider:    next.Provider,
		EncAPIKey:   encKey,
		BaseURL:     next.BaseURL,
		Model:       next.Model,
		Temperature: next.Temperature,
	}); err != nil {
		return Settings{}, err
	}

	metrics.Global().SettingsUpdates.Inc()
	s.logger.Info().Str("provider", next.Provider).Str("model", next.Model).Msg("settings updated")
	return next, nil
}

func validate(next Settings, patch Patch) error {
	switch next.Provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic, ProviderGemini:
	default:
		return ErrUnknownProvider
	}
	if patch.APIKey != nil && next.APIKey == "" {
		return ErrEmptyAPIKey
	}
	if patch.Model != nil && next.Model == "" {
		return ErrEmptyModel
	}
	if next.Temperature != nil && (*next.Temperature < 0 || *next.Temperature > 2) {
		return ErrTemperatureRange
	}
	return nil
}

func Defaults() Settings {
	return Settings{
		Provider: ProviderGemini,
		Model:    defaultModels[ProviderGemini],
	}
}

// DefaultModel returns the default model for a provider, empty for unknown
// providers.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}
