package session

import (
	"errors"
	"testing"
	"time"

	"github.com/ilyra-ai/december/internal/model"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	s := NewStore()

	first := s.GetOrCreate("container-a")
	second := s.GetOrCreate("container-a")
	if first.ID != second.ID {
		t.Fatalf("expected same session, got %q and %q", first.ID, second.ID)
	}
	if first.ContainerID != "container-a" {
		t.Fatalf("unexpected container id %q", first.ContainerID)
	}
}

func TestCreateAlwaysRegistersNew(t *testing.T) {
	s := NewStore()

	first := s.Create("container-a")
	time.Sleep(2 * time.Millisecond)
	second := s.Create("container-a")
	if first.ID == second.ID {
		t.Fatalf("expected distinct sessions, both got %q", first.ID)
	}

	// Lookup by container returns the first registered session.
	got := s.GetOrCreate("container-a")
	if got.ID != first.ID {
		t.Fatalf("expected first session %q, got %q", first.ID, got.ID)
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendBumpsUpdatedAt(t *testing.T) {
	s := NewStore()
	sess := s.Create("container-a")

	updated, err := s.Append(sess.ID, model.Message{ID: "1", Role: model.RoleUser, Content: "hi", Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(updated.Messages))
	}
	if updated.UpdatedAt.Before(sess.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards: %v -> %v", sess.UpdatedAt, updated.UpdatedAt)
	}

	if _, err := s.Append("missing", model.Message{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	sess := s.Create("container-a")
	if _, err := s.Append(sess.ID, model.Message{ID: "1", Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Messages[0].Content = "mutated"

	again, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Messages[0].Content != "hi" {
		t.Fatalf("store state leaked through snapshot: %q", again.Messages[0].Content)
	}
}
