package registry

import (
	"net/http"

	"github.com/ilyra-ai/december/internal/providers"
	"github.com/ilyra-ai/december/internal/providers/anthropic_messages"
	"github.com/ilyra-ai/december/internal/providers/gemini"
	"github.com/ilyra-ai/december/internal/providers/openai_compat"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

type BuildOptions struct {
	Provider   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Build returns the transport for a provider name. Unknown names fall
// through to the Gemini transport, which is the dispatch default.
func Build(opts BuildOptions) providers.Provider {
	switch opts.Provider {
	case "openai":
		return openai_compat.New(openai_compat.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		})
	case "openrouter":
		base := opts.BaseURL
		if base == "" {
			base = openRouterBaseURL
		}
		return openai_compat.New(openai_compat.Config{
			BaseURL:    base,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		})
	case "anthropic":
		return anthropic_messages.New(anthropic_messages.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		})
	default:
		return gemini.New(gemini.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		})
	}
}
