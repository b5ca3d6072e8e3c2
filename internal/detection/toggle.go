package detection

import (
	"context"
	"errors"
	"sync"

	"zvision-console/internal/backend"
	"zvision-console/internal/model"
)

// Backend is the detection surface of the camera backend.
type Backend interface {
	DetectionStatus(ctx context.Context, id string) (model.DetectionStatus, error)
	SetDetection(ctx context.Context, id string, running bool) error
}

type ErrorKind string

const (
	NotAvailable  ErrorKind = "not_available"
	RequestFailed ErrorKind = "request_failed"
)

const (
	MsgNotAvailableTitle = "Feature Not Available"
	MsgNotAvailable      = "Detection control is not available for this camera"
	MsgStartFailed       = "Failed to start detection. Please try again."
	MsgStopFailed        = "Failed to stop detection. Please try again."
	MsgStarted           = "The camera is now monitoring for activity"
	MsgStopped           = "The camera has stopped monitoring"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

var ErrBusy = errors.New("detection: toggle already in progress")

type State struct {
	Running   bool `json:"running"`
	Available bool `json:"available"`
	Pending   bool `json:"pending"`
}

// Toggle is the detection switch of one camera. Running is the last value confirmed by the
// backend, or the optimistic value while a request is pending.
type Toggle struct {
	mu        sync.Mutex
	running   bool
	available bool
	pending   bool
}

func NewToggle() *Toggle {
	return &Toggle{available: true}
}

func (t *Toggle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Toggle) stateLocked() State {
	return State{Running: t.running, Available: t.available, Pending: t.pending}
}

// Set asks the backend to start or stop detection. The state flips immediately and is
// reverted when the backend refuses. A request whose context ended before the answer
// arrived leaves the state as it was.
func (t *Toggle) Set(ctx context.Context, b Backend, cameraID string, desired bool) (State, error) {
	t.mu.Lock()
	if !t.available {
		st := t.stateLocked()
		t.mu.Unlock()
		return st, &Error{Kind: NotAvailable, Message: MsgNotAvailable}
	}
	if t.pending {
		st := t.stateLocked()
		t.mu.Unlock()
		return st, ErrBusy
	}
	previous := t.running
	t.pending = true
	t.running = desired
	t.mu.Unlock()

	err := b.SetDetection(ctx, cameraID, desired)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = false

	if ctxErr := ctx.Err(); ctxErr != nil {
		t.running = previous
		return t.stateLocked(), ctxErr
	}
	if err == nil {
		return t.stateLocked(), nil
	}

	t.running = previous
	switch {
	case backend.IsUnauthorized(err):
		return t.stateLocked(), err
	case backend.IsNotFound(err):
		t.available = false
		return t.stateLocked(), &Error{Kind: NotAvailable, Message: MsgNotAvailable, Err: err}
	default:
		msg := MsgStopFailed
		if desired {
			msg = MsgStartFailed
		}
		return t.stateLocked(), &Error{Kind: RequestFailed, Message: msg, Err: err}
	}
}

// Refresh reads the backend status. Failures other than 401 and 404 fall back to "not
// running" without an error.
func (t *Toggle) Refresh(ctx context.Context, b Backend, cameraID string) (State, error) {
	status, err := b.DetectionStatus(ctx, cameraID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending {
		return t.stateLocked(), nil
	}
	switch {
	case err == nil:
		t.available = true
		t.running = status.Running()
	case backend.IsUnauthorized(err):
		return t.stateLocked(), err
	case backend.IsNotFound(err):
		t.available = false
		t.running = false
	default:
		t.running = false
	}
	return t.stateLocked(), nil
}
