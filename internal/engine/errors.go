package engine

import (
	"errors"
	"fmt"
)

var (
	ErrBusy           = errors.New("a turn is already in progress")
	ErrNotStarted     = errors.New("no story in progress")
	ErrNoPendingSkill = errors.New("no skill awaiting confirmation")
	ErrNoPendingEdit  = errors.New("no edit awaiting confirmation")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrImagesDisabled = errors.New("image generation is not configured")
	ErrEmptyAction    = errors.New("action cannot be empty")
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	// KindCredential means the failing credential was rotated out; the
	// same action can be retried.
	KindCredential ErrorKind = "credential"
	// KindTransport is a generation failure with no alternate credential.
	KindTransport ErrorKind = "transport"
	// KindSchema means the model broke the response contract.
	KindSchema ErrorKind = "schema"
)

// Error is the engine's current-error value. It never replaces the last
// committed state.
type Error struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Raw         string    `json:"raw,omitempty"`
	Recoverable bool      `json:"recoverable"`
	FailedSlot  int       `json:"failedSlot"`
	Err         error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindTransport {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
