package storage

import (
	"context"
	"sync"
	"time"

	"github.com/voicetyped/adaptive/pkg/dialog"
)

// Memory keeps encoded state in process. State is copied in and out, so
// callers never share maps with the store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	raw        []byte
	lastAccess time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Load(_ context.Context, conversationID string) (*dialog.ConversationState, error) {
	m.mu.RLock()
	e, ok := m.entries[conversationID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(e.raw)
}

func (m *Memory) Save(_ context.Context, state *dialog.ConversationState) error {
	raw, err := encode(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[state.ConversationID] = memoryEntry{raw: raw, lastAccess: state.LastAccess}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.entries, conversationID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.lastAccess.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored conversations.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
