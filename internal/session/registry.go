package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type RegistryOptions struct {
	Storage       Storage
	Authenticator Authenticator
	Logger        *zap.Logger
	Now           func() time.Time
	// Notify receives every event of every gate, tagged with the console session id.
	Notify func(sessionID string, ev Event)
}

// Registry holds one gate per console session, created on first use.
type Registry struct {
	opts RegistryOptions

	mu    sync.Mutex
	gates map[string]*Gate
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{opts: opts, gates: make(map[string]*Gate)}
}

// Gate returns the gate of a console session, restoring it from storage when it is first
// seen.
func (r *Registry) Gate(ctx context.Context, sessionID string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gates[sessionID]; ok {
		g.Touch()
		return g
	}

	g := NewGate(GateOptions{
		Slot:          SlotFor(sessionID),
		Storage:       r.opts.Storage,
		Authenticator: r.opts.Authenticator,
		Logger:        r.opts.Logger,
		Now:           r.opts.Now,
	})
	if _, err := g.Restore(ctx); err != nil {
		r.opts.Logger.Warn("restore session", zap.String("slot", g.Slot()), zap.Error(err))
	}
	if r.opts.Notify != nil {
		notify := r.opts.Notify
		g.Subscribe(func(ev Event) { notify(sessionID, ev) })
	}
	r.gates[sessionID] = g
	return g
}

// Sweep drops anonymous gates idle for longer than idle and returns how many were removed.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.opts.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, g := range r.gates {
		since, busy := g.idleSince(now)
		if busy || since < idle {
			continue
		}
		delete(r.gates, id)
		removed++
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gates)
}
