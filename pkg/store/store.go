package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nanohr/nanofit/pkg/workout"
)

// Store persists completed workout sessions per user
type Store interface {
	workout.Saver

	// List returns all sessions of a user, oldest first
	List(ctx context.Context, userID string) ([]workout.Session, error)
}

// Memory is an in-process Store, used by default and in tests
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]workout.Session
}

// NewMemory instantiates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string][]workout.Session),
	}
}

// Save appends a session to the user's records
func (m *Memory) Save(_ context.Context, userID string, session workout.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[userID] = append(m.sessions[userID], session)
	return nil
}

// List returns all sessions of a user, oldest first
func (m *Memory) List(_ context.Context, userID string) ([]workout.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]workout.Session, len(m.sessions[userID]))
	copy(sessions, m.sessions[userID])

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAtMillis < sessions[j].StartedAtMillis
	})

	return sessions, nil
}
