package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State string

const (
	Anonymous      State = "anonymous"
	Authenticating State = "authenticating"
	Authenticated  State = "authenticated"
)

type EventType string

const (
	EventLogin   EventType = "session.login"
	EventLogout  EventType = "session.logout"
	EventExpired EventType = "session.expired"
)

type Event struct {
	Type EventType `json:"type"`
	Slot string    `json:"-"`
	At   time.Time `json:"at"`
}

// Authenticator exchanges operator credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type GateOptions struct {
	Slot          string
	Storage       Storage
	Authenticator Authenticator
	Logger        *zap.Logger
	Now           func() time.Time
}

// Gate owns one credential. Memory and durable storage are always written together under
// mu; the cookie copy is written by the caller's response and repaired by SyncCookie.
type Gate struct {
	slot    string
	storage Storage
	auth    Authenticator
	logger  *zap.Logger
	now     func() time.Time

	mu             sync.Mutex
	token          string
	authenticating bool
	generation     uint64
	lastUsed       time.Time

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func NewGate(opts GateOptions) *Gate {
	if opts.Slot == "" {
		opts.Slot = Slot
	}
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		slot:     opts.Slot,
		storage:  opts.Storage,
		auth:     opts.Authenticator,
		logger:   opts.Logger.With(zap.String("slot", opts.Slot)),
		now:      opts.Now,
		lastUsed: opts.Now(),
		subs:     make(map[int]func(Event)),
	}
}

func (g *Gate) Slot() string { return g.slot }

// Restore hydrates memory from durable storage. It reports whether a credential is held
// afterwards.
func (g *Gate) Restore(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" {
		return true, nil
	}
	token, err := g.storage.Load(ctx, g.slot)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	g.token = token
	g.generation++
	g.logger.Debug("credential restored")
	return true, nil
}

// Authenticate logs in against the backend. On failure nothing stored is touched.
func (g *Gate) Authenticate(ctx context.Context, cookies CookieMirror, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return &AuthError{Kind: MalformedRequest, Message: MsgUsernameRequired}
	}
	if password == "" {
		return &AuthError{Kind: MalformedRequest, Message: MsgPasswordRequired}
	}

	g.mu.Lock()
	if g.authenticating {
		g.mu.Unlock()
		return ErrAuthInProgress
	}
	g.authenticating = true
	g.lastUsed = g.now()
	g.mu.Unlock()

	token, err := g.auth.Login(ctx, username, password)

	g.mu.Lock()
	g.authenticating = false
	if err != nil {
		g.mu.Unlock()
		authErr := classifyLoginError(err)
		g.logger.Info("login failed", zap.String("kind", string(authErr.Kind)), zap.Error(err))
		return authErr
	}
	if err := g.storage.Save(context.WithoutCancel(ctx), g.slot, token); err != nil {
		g.mu.Unlock()
		g.logger.Error("persist credential", zap.Error(err))
		return &AuthError{Kind: ServerFailure, Message: MsgLoginFailed, Err: err}
	}
	g.token = token
	g.generation++
	g.mu.Unlock()

	if cookies != nil {
		cookies.SetCredential(token)
	}
	g.logger.Info("login succeeded")
	g.emit(EventLogin)
	return nil
}

// Deauthenticate clears every copy of the credential. Calling it again is harmless and
// emits nothing.
func (g *Gate) Deauthenticate(ctx context.Context, cookies CookieMirror) error {
	g.mu.Lock()
	had := g.token != ""
	g.token = ""
	if had {
		g.generation++
	}
	err := g.storage.Delete(context.WithoutCancel(ctx), g.slot)
	g.mu.Unlock()

	if cookies != nil {
		cookies.ClearCredential()
	}
	if err != nil {
		g.logger.Warn("delete stored credential", zap.Error(err))
	}
	if had {
		g.logger.Info("logged out")
		g.emit(EventLogout)
	}
	return err
}

// Expire forces a logout after the backend rejected the credential of the given
// generation. Only the first call for the current generation has any effect.
func (g *Gate) Expire(ctx context.Context, cookies CookieMirror, generation uint64) bool {
	g.mu.Lock()
	if g.token == "" || generation != g.generation {
		g.mu.Unlock()
		return false
	}
	g.token = ""
	g.generation++
	err := g.storage.Delete(context.WithoutCancel(ctx), g.slot)
	g.mu.Unlock()

	if cookies != nil {
		cookies.ClearCredential()
	}
	if err != nil {
		g.logger.Warn("delete stored credential", zap.Error(err))
	}
	g.logger.Info("session expired")
	g.emit(EventExpired)
	return true
}

func (g *Gate) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != ""
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.authenticating:
		return Authenticating
	case g.token != "":
		return Authenticated
	default:
		return Anonymous
	}
}

// Credential returns the current token and its generation.
func (g *Gate) Credential() (string, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token, g.generation
}

// SyncCookie repairs the cookie copy when the presented value disagrees with memory.
func (g *Gate) SyncCookie(cookies CookieMirror, presented string) {
	token, _ := g.Credential()
	switch {
	case token == "" && presented != "":
		cookies.ClearCredential()
	case token != "" && presented != token:
		cookies.SetCredential(token)
	}
}

// Touch records activity for idle sweeping.
func (g *Gate) Touch() {
	g.mu.Lock()
	g.lastUsed = g.now()
	g.mu.Unlock()
}

func (g *Gate) idleSince(now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	busy := g.authenticating || g.token != ""
	return now.Sub(g.lastUsed), busy
}

// Subscribe registers fn for session events. The returned function removes it.
func (g *Gate) Subscribe(fn func(Event)) func() {
	g.subsMu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.subsMu.Lock()
			delete(g.subs, id)
			g.subsMu.Unlock()
		})
	}
}

func (g *Gate) emit(t EventType) {
	ev := Event{Type: t, Slot: g.slot, At: g.now()}
	g.subsMu.Lock()
	fns := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Binding ties the gate to one request so the backend client can report 401s.
type Binding struct {
	gate    *Gate
	ctx     context.Context
	cookies CookieMirror
}

// For returns the credential binding for one request.
func (g *Gate) For(ctx context.Context, cookies CookieMirror) *Binding {
	g.Touch()
	return &Binding{gate: g, ctx: ctx, cookies: cookies}
}

func (b *Binding) Credential() (string, uint64) {
	return b.gate.Credential()
}

func (b *Binding) Unauthorized(generation uint64) {
	b.gate.Expire(b.ctx, b.cookies, generation)
}
