package capture

import (
	"context"
	"errors"
)

// State of a capture source. A source starts Idle, becomes Ready once the
// underlying device or feed is acquired, and is Open while actively
// emitting chunks. Stop returns an Open source to Ready.
type State int

const (
	StateIdle State = iota
	StateReady
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrPermission indicates the audio device was denied by the platform.
	ErrPermission = errors.New("capture: permission denied")
	// ErrDevice indicates the audio device or feed is unavailable.
	ErrDevice = errors.New("capture: device unavailable")
	// ErrNotReady is returned by Start when the source has not been set up.
	ErrNotReady = errors.New("capture: source not ready")
	// ErrAlreadyOpen is returned by Start on a source that is already emitting.
	ErrAlreadyOpen = errors.New("capture: source already open")
)

// Source is the common interface for audio capture front-ends. Chunks are
// emitted in capture order on the Chunks channel while the source is Open.
// A zero-length chunk may appear as the very first emission on some
// platforms; consumers decide what to do with it.
type Source interface {
	Setup(ctx context.Context) error
	Start() error
	Stop() error
	State() State
	Chunks() <-chan []byte
	Close() error
}
