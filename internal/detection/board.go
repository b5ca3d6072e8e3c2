package detection

import (
	"context"
	"sync"
)

// Board holds the toggle of every camera seen by the console. OnChange is called after
// each confirmed change.
type Board struct {
	OnChange func(cameraID string, st State)

	mu      sync.Mutex
	toggles map[string]*Toggle
}

func NewBoard() *Board {
	return &Board{toggles: make(map[string]*Toggle)}
}

func (b *Board) Toggle(cameraID string) *Toggle {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.toggles[cameraID]
	if !ok {
		t = NewToggle()
		b.toggles[cameraID] = t
	}
	return t
}

func (b *Board) Set(ctx context.Context, be Backend, cameraID string, desired bool) (State, error) {
	st, err := b.Toggle(cameraID).Set(ctx, be, cameraID, desired)
	if err == nil && b.OnChange != nil {
		b.OnChange(cameraID, st)
	}
	return st, err
}

func (b *Board) Refresh(ctx context.Context, be Backend, cameraID string) (State, error) {
	return b.Toggle(cameraID).Refresh(ctx, be, cameraID)
}

// Forget drops the toggle of a deleted camera.
func (b *Board) Forget(cameraID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.toggles, cameraID)
}
