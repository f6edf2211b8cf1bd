package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/providers"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	defaultTemperature = 0.2
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client speaks the generateContent REST dialect. The API key travels as a
// URL query parameter, not a header.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

type content struct {
	Role  string `json:"role"`
	Parts []any  `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type inlineDataPart struct {
	InlineData inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func wireRole(role model.Role) string {
	if role == model.RoleAssistant {
		return "model"
	}
	return string(role)
}

// buildContents maps prior history as plain text parts and appends the
// newest turn separately with full attachment normalization. The newest turn
// is the last message of the request, which the adapter guarantees is the
// session's freshly appended user message.
func buildContents(req providers.Request) []content {
	if len(req.Messages) == 0 {
		return []content{}
	}

	history := req.Messages[:len(req.Messages)-1]
	latest := req.Messages[len(req.Messages)-1]

	out := make([]content, 0, len(req.Messages))
	for _, msg := range history {
		out = append(out, content{
			Role:  wireRole(msg.Role),
			Parts: []any{textPart{Text: msg.Content}},
		})
	}
	out = append(out, content{
		Role:  wireRole(latest.Role),
		Parts: buildParts(latest),
	})
	return out
}

func buildParts(msg model.Message) []any {
	parts := []any{textPart{Text: msg.Content}}
	for _, att := range msg.Attachments {
		switch att.Type {
		case model.AttachmentImage:
			parts = append(parts, inlineDataPart{
				InlineData: inlineData{MimeType: att.MimeType, Data: att.Data},
			})
		case model.AttachmentDocument:
			parts = append(parts, textPart{Text: providers.DocumentBlock(att)})
		}
	}
	return parts
}

func (c *Client) buildPayload(req providers.Request) ([]byte, error) {
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	payload := map[string]any{
		"contents": buildContents(req),
		"generationConfig": map[string]any{
			"temperature": temperature,
		},
	}
	if strings.TrimSpace(req.System) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []any{textPart{Text: req.System}},
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generateContent payload: %w", err)
	}
	return b, nil
}

func (c *Client) endpointURL(modelName string) string {
	base := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/")
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, modelName, url.QueryEscape(c.cfg.APIKey))
}

func (c *Client) Chat(ctx context.Context, req providers.Request) (providers.Response, error) {
	body, err := c.buildPayload(req)
	if err != nil {
		return providers.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(req.Model), bytes.NewReader(body))
	if err != nil {
		return providers.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Response{}, fmt.Errorf("generateContent request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.Response{}, fmt.Errorf("read generateContent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Response{}, fmt.Errorf("gemini: %s", errorMessage(respBody, resp.StatusCode))
	}

	text, err := parseCandidates(respBody)
	if err != nil {
		return providers.Response{}, err
	}
	return providers.Response{Text: text}, nil
}

// errorMessage surfaces the provider's own reported error when present.
func errorMessage(body []byte, status int) string {
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && strings.TrimSpace(resp.Error.Message) != "" {
		return resp.Error.Message
	}
	return fmt.Sprintf("status %d", status)
}

// parseCandidates concatenates all text parts of the first candidate.
func parseCandidates(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode generateContent response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
