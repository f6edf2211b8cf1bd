package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/providers"
)

func TestBuildContentsRenamesRolesAndNormalizesLatest(t *testing.T) {
	contents := buildContents(providers.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "first question"},
			{Role: model.RoleAssistant, Content: "first answer"},
			{
				Role:    model.RoleUser,
				Content: "second question",
				Attachments: []model.Attachment{
					{Type: model.AttachmentImage, Data: "aW1n", MimeType: "image/png"},
				},
			},
		},
	})
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("role mapping broken: %q, %q", contents[0].Role, contents[1].Role)
	}

	// Prior history stays plain text even when normalization would apply.
	if len(contents[0].Parts) != 1 || len(contents[1].Parts) != 1 {
		t.Fatalf("history must be plain text parts")
	}

	latest := contents[2]
	if len(latest.Parts) != 2 {
		t.Fatalf("latest turn must carry attachment parts, got %d", len(latest.Parts))
	}
	ip, ok := latest.Parts[1].(inlineDataPart)
	if !ok {
		t.Fatalf("expected inlineData part, got %#v", latest.Parts[1])
	}
	if ip.InlineData.MimeType != "image/png" || ip.InlineData.Data != "aW1n" {
		t.Fatalf("unexpected inlineData %+v", ip.InlineData)
	}
}

func TestBuildPayloadSystemInstructionAndTemperature(t *testing.T) {
	c := New(Config{APIKey: "k"})
	body, err := c.buildPayload(providers.Request{
		System:   "instructions",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	var payload struct {
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		GenerationConfig struct {
			Temperature float64 `json:"temperature"`
		} `json:"generationConfig"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.SystemInstruction.Parts) != 1 || payload.SystemInstruction.Parts[0].Text != "instructions" {
		t.Fatalf("unexpected systemInstruction %+v", payload.SystemInstruction)
	}
	if payload.GenerationConfig.Temperature != 0.2 {
		t.Fatalf("expected default temperature 0.2, got %v", payload.GenerationConfig.Temperature)
	}
}

func TestChatSendsKeyAsQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("api key not in query: %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret"})
	resp, err := c.Chat(context.Background(), providers.Request{
		Model:    "gemini-2.0-flash",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestChatSurfacesProviderErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Chat(context.Background(), providers.Request{Model: "gemini-2.0-flash", Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("provider message not surfaced: %v", err)
	}
}

func TestChatFallsBackToStatusOnOpaqueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Chat(context.Background(), providers.Request{Model: "m", Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected status fallback, got %v", err)
	}
}
