package session

import (
	"context"
	"sync"
)

// Slot is the durable storage key for the credential.
const Slot = "auth-token"

// SlotFor names the durable slot of one console session.
func SlotFor(sessionID string) string {
	if sessionID == "" {
		return Slot
	}
	return Slot + ":" + sessionID
}

// Storage is the durable copy of the credential. Load returns "" for an empty slot.
type Storage interface {
	Load(ctx context.Context, slot string) (string, error)
	Save(ctx context.Context, slot, token string) error
	Delete(ctx context.Context, slot string) error
}

type MemoryStorage struct {
	mu    sync.Mutex
	slots map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[string]string)}
}

func (m *MemoryStorage) Load(_ context.Context, slot string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slot], nil
}

func (m *MemoryStorage) Save(_ context.Context, slot, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = token
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}
