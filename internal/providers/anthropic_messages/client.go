package anthropic_messages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/providers"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"

	apiVersion = "2023-06-01"

	// The messages endpoint requires max_tokens; responses are capped here.
	maxTokens = 4096

	defaultTemperature = 0.2
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

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

type wireMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type   string      `json:"type"`
	Source imageSource `json:"source"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// buildMessages normalizes every message into the array-of-parts shape. The
// system prompt is not part of the list; it rides the request's system field.
func buildMessages(req providers.Request) []wireMessage {
	out := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		out = append(out, wireMessage{Role: string(msg.Role), Content: buildContentParts(msg)})
	}
	return out
}

func buildContentParts(msg model.Message) []any {
	parts := []any{textPart{Type: "text", Text: msg.Content}}
	for _, att := range msg.Attachments {
		switch att.Type {
		case model.AttachmentImage:
			parts = append(parts, imagePart{
				Type: "image",
				Source: imageSource{
					Type:      "base64",
					MediaType: att.MimeType,
					Data:      att.Data,
				},
			})
		case model.AttachmentDocument:
			parts = append(parts, textPart{Type: "text", Text: providers.DocumentBlock(att)})
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
		"model":       req.Model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages":    buildMessages(req),
	}
	if strings.TrimSpace(req.System) != "" {
		payload["system"] = req.System
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal messages payload: %w", err)
	}
	return b, nil
}

func (c *Client) Chat(ctx context.Context, req providers.Request) (providers.Response, error) {
	body, err := c.buildPayload(req)
	if err != nil {
		return providers.Response{}, err
	}

	url := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return providers.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Response{}, fmt.Errorf("messages request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.Response{}, fmt.Errorf("read messages response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Response{}, fmt.Errorf("messages status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	text, err := parseMessages(respBody)
	if err != nil {
		return providers.Response{}, err
	}
	return providers.Response{Text: text}, nil
}

// parseMessages concatenates every text-typed content block.
func parseMessages(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
