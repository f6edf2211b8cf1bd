package openai_compat

import (
	"bufio"
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

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client speaks the chat-completions dialect shared by OpenAI and
// OpenRouter, including SSE streaming.
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

var (
	_ providers.Provider          = (*Client)(nil)
	_ providers.StreamingProvider = (*Client)(nil)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildMessages prepends the system prompt and maps history 1:1. Only user
// messages carrying attachments get the array-of-parts shape; everything
// else passes through as a plain string.
func buildMessages(req providers.Request) []chatMessage {
	out := make([]chatMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		out = append(out, chatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		if msg.Role == model.RoleUser && len(msg.Attachments) > 0 {
			out = append(out, chatMessage{Role: string(msg.Role), Content: buildContentParts(msg)})
			continue
		}
		out = append(out, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// Part order is fixed: primary text first, then one part per attachment.
func buildContentParts(msg model.Message) []any {
	parts := []any{textPart{Type: "text", Text: msg.Content}}
	for _, att := range msg.Attachments {
		switch att.Type {
		case model.AttachmentImage:
			parts = append(parts, imagePart{
				Type:     "image_url",
				ImageURL: imageURL{URL: fmt.Sprintf("data:%s;base64,%s", att.MimeType, att.Data)},
			})
		case model.AttachmentDocument:
			parts = append(parts, textPart{Type: "text", Text: providers.DocumentBlock(att)})
		}
	}
	return parts
}

func (c *Client) buildPayload(req providers.Request, stream bool) ([]byte, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": buildMessages(req),
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if stream {
		payload["stream"] = true
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, nil
}

func (c *Client) endpointURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/") + "/chat/completions"
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

func (c *Client) Chat(ctx context.Context, req providers.Request) (providers.Response, error) {
	body, err := c.buildPayload(req, false)
	if err != nil {
		return providers.Response{}, err
	}
	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return providers.Response{}, err
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.Response{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.Response{}, fmt.Errorf("read chat completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.Response{}, fmt.Errorf("chat completion status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	text, err := parseChatCompletion(respBody)
	if err != nil {
		return providers.Response{}, err
	}
	return providers.Response{Text: text}, nil
}

// parseChatCompletion takes the first choice's content. Missing choices or
// empty content is not an error here; the adapter substitutes its fallback.
func parseChatCompletion(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return anyToText(resp.Choices[0].Message.Content), nil
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream opens a streaming completion and invokes emit for every
// non-empty content delta until the upstream sends [DONE] or closes.
func (c *Client) ChatStream(ctx context.Context, req providers.Request, emit func(delta string) error) error {
	body, err := c.buildPayload(req, true)
	if err != nil {
		return err
	}
	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("streaming request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("streaming status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks rather than aborting the stream.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := emit(delta); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
