package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ilyra-ai/december/internal/model"
)

var ErrNotFound = errors.New("session not found")

// Store is an in-memory session registry. All reads return snapshot copies;
// mutation goes through Append. A production deployment still needs capacity
// and expiration limits on top of this.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.ChatSession
	order    []string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.ChatSession),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Create registers a new session even when one already exists for the
// container. The id is derived from the container id and creation time, which
// keeps collisions unlikely without guaranteeing uniqueness.
func (s *Store) Create(containerID string) model.ChatSession {
	now := time.Now().UTC()
	sess := &model.ChatSession{
		ID:          fmt.Sprintf("%s-%d", containerID, now.UnixMilli()),
		ContainerID: containerID,
		Messages:    []model.Message{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	return snapshot(sess)
}

// GetOrCreate returns the first registered session for the container,
// creating one when none exists.
func (s *Store) GetOrCreate(containerID string) model.ChatSession {
	s.mu.RLock()
	for _, id := range s.order {
		if sess := s.sessions[id]; sess != nil && sess.ContainerID == containerID {
			out := snapshot(sess)
			s.mu.RUnlock()
			return out
		}
	}
	s.mu.RUnlock()
	return s.Create(containerID)
}

func (s *Store) Get(sessionID string) (model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.ChatSession{}, ErrNotFound
	}
	return snapshot(sess), nil
}

// Append adds a message to the session and bumps UpdatedAt.
func (s *Store) Append(sessionID string, msg model.Message) (model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.ChatSession{}, ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now().UTC()
	return snapshot(sess), nil
}

// Lock returns the per-container mutex serializing sends. Holding it across
// "read history, call provider, append result" keeps concurrent callers from
// interleaving appends on the same session.
func (s *Store) Lock(containerID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[containerID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[containerID] = mu
	}
	return mu
}

func snapshot(sess *model.ChatSession) model.ChatSession {
	out := *sess
	out.Messages = make([]model.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return out
}
