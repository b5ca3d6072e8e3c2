package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type persistedSlot struct {
	Token   string `json:"token"`
	SavedAt int64  `json:"savedAt"`
}

type persistedSlotsFile struct {
	Version int                      `json:"version"`
	Slots   map[string]persistedSlot `json:"slots"`
}

// FileStorage keeps every slot in one JSON file, rewritten atomically on each change.
type FileStorage struct {
	path string

	mu    sync.Mutex
	slots map[string]persistedSlot
}

func OpenFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{path: path, slots: make(map[string]persistedSlot)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fs, nil
		}
		return nil, err
	}

	var file persistedSlotsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("session state file %s: %w", path, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("session state file %s: unsupported version %d", path, file.Version)
	}
	for slot, entry := range file.Slots {
		if entry.Token != "" {
			fs.slots[slot] = entry
		}
	}
	return fs, nil
}

func (f *FileStorage) Load(_ context.Context, slot string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[slot].Token, nil
}

func (f *FileStorage) Save(_ context.Context, slot, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.slots[slot]
	f.slots[slot] = persistedSlot{Token: token, SavedAt: time.Now().UnixMilli()}
	if err := f.persistLocked(); err != nil {
		if had {
			f.slots[slot] = prev
		} else {
			delete(f.slots, slot)
		}
		return err
	}
	return nil
}

func (f *FileStorage) Delete(_ context.Context, slot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.slots[slot]; !ok {
		return nil
	}
	delete(f.slots, slot)
	return f.persistLocked()
}

func (f *FileStorage) persistLocked() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session state: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(persistedSlotsFile{Version: 1, Slots: f.slots}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("session state: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session state: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session state: close temp: %w", err)
	}
	return os.Rename(tmpName, f.path)
}
