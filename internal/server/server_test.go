package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ilyra-ai/december/internal/chat"
	"github.com/ilyra-ai/december/internal/model"
	"github.com/ilyra-ai/december/internal/settings"
)

type fakeChat struct {
	user      model.Message
	assistant model.Message
	err       error
	events    []chat.Event
}

func (f *fakeChat) SendMessage(context.Context, string, string, []model.Attachment) (model.Message, model.Message, error) {
	return f.user, f.assistant, f.err
}

func (f *fakeChat) SendMessageStream(context.Context, string, string, []model.Attachment) <-chan chat.Event {
	ch := make(chan chat.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeSettings struct {
	cfg       settings.Settings
	updateErr error
	gotPatch  settings.Patch
}

func (f *fakeSettings) Get(context.Context) (settings.Settings, error) { return f.cfg, nil }

func (f *fakeSettings) Update(_ context.Context, patch settings.Patch) (settings.Settings, error) {
	f.gotPatch = patch
	return f.cfg, f.updateErr
}

type fakeSessions struct {
	session model.ChatSession
}

func (f *fakeSessions) GetOrCreate(string) model.ChatSession { return f.session }

func newTestServer(t *testing.T, fc *fakeChat, fs *fakeSettings, sess *fakeSessions) *httptest.Server {
	t.Helper()
	if sess == nil {
		sess = &fakeSessions{session: model.ChatSession{ID: "c1-1", ContainerID: "c1"}}
	}
	mux := http.NewServeMux()
	New(Config{Chat: fc, Settings: fs, Sessions: sess, Logger: zerolog.Nop()}).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestSendMessageRoundTrip(t *testing.T) {
	fc := &fakeChat{
		user:      model.Message{ID: "u1", Role: model.RoleUser, Content: "hi"},
		assistant: model.Message{ID: "a1", Role: model.RoleAssistant, Content: "hello"},
	}
	ts := newTestServer(t, fc, &fakeSettings{}, nil)

	resp, err := http.Post(ts.URL+"/api/chat/c1", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		UserMessage      model.Message `json:"userMessage"`
		AssistantMessage model.Message `json:"assistantMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AssistantMessage.Content != "hello" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSendMessageRequiresText(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, &fakeSettings{}, nil)

	resp, err := http.Post(ts.URL+"/api/chat/c1", "application/json", strings.NewReader(`{"message":"  "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStreamEmitsSSEFrames(t *testing.T) {
	fc := &fakeChat{events: []chat.Event{
		{Type: chat.EventUser, Data: model.Message{ID: "u1", Role: model.RoleUser, Content: "hi"}},
		{Type: chat.EventAssistant, Data: model.Message{ID: "a1", Role: model.RoleAssistant, Content: "he"}},
		{Type: chat.EventAssistant, Data: model.Message{ID: "a1", Role: model.RoleAssistant, Content: "hello"}},
		{Type: chat.EventDone, Data: model.Message{ID: "a1", Role: model.RoleAssistant, Content: "hello"}},
	}}
	ts := newTestServer(t, fc, &fakeSettings{}, nil)

	resp, err := http.Post(ts.URL+"/api/chat/c1/stream", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []chat.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev chat.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != chat.EventUser || events[3].Type != chat.EventDone {
		t.Fatalf("unexpected sequence %+v", events)
	}
	if events[3].Data.Content != "hello" {
		t.Fatalf("done snapshot lost content: %+v", events[3])
	}
}

func TestGetSessionReturnsHistory(t *testing.T) {
	sess := &fakeSessions{session: model.ChatSession{
		ID:          "c1-99",
		ContainerID: "c1",
		Messages:    []model.Message{{ID: "u1", Role: model.RoleUser, Content: "hi"}},
	}}
	ts := newTestServer(t, &fakeChat{}, &fakeSettings{}, sess)

	resp, err := http.Get(ts.URL + "/api/chat/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got model.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "c1-99" || len(got.Messages) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestGetSettingsMasksAPIKey(t *testing.T) {
	fs := &fakeSettings{cfg: settings.Settings{Provider: "openai", APIKey: "sk-verysecret-abcd", Model: "gpt-4o"}}
	ts := newTestServer(t, &fakeChat{}, fs, nil)

	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got settings.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.APIKey != "****abcd" {
		t.Fatalf("api key leaked or mismasked: %q", got.APIKey)
	}
}

func TestUpdateSettingsValidationIs400(t *testing.T) {
	fs := &fakeSettings{updateErr: settings.ErrTemperatureRange}
	ts := newTestServer(t, &fakeChat{}, fs, nil)

	body, _ := json.Marshal(map[string]any{"temperature": 9.5})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpdateSettingsPassesPatchThrough(t *testing.T) {
	fs := &fakeSettings{cfg: settings.Settings{Provider: "anthropic", APIKey: "k", Model: "claude-x"}}
	ts := newTestServer(t, &fakeChat{}, fs, nil)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", strings.NewReader(`{"provider":"anthropic"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if fs.gotPatch.Provider == nil || *fs.gotPatch.Provider != "anthropic" {
		t.Fatalf("patch not forwarded: %+v", fs.gotPatch)
	}
}
