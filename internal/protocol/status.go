package protocol

import (
	"errors"
	"fmt"

	"github.com/bnema/orbital/internal/registry"
)

// ErrProtocol marks a malformed or unexpected frame. Connections that send
// one are dropped.
var ErrProtocol = errors.New("protocol error")

// Status is the outcome of a command.
type Status uint32

const (
	StatusOK Status = iota
	StatusNotFound
	StatusResourceExhausted
	StatusInvalid
	// StatusProtocolError is sent just before the server drops a
	// connection for a malformed or out-of-range command.
	StatusProtocolError
)

var statusNames = [...]string{
	StatusOK:                "ok",
	StatusNotFound:          "not found",
	StatusResourceExhausted: "resource exhausted",
	StatusInvalid:           "invalid",
	StatusProtocolError:     "protocol error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// StatusOf maps a command error to a reply status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrProtocol):
		return StatusProtocolError
	case errors.Is(err, registry.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, registry.ErrResourceExhausted):
		return StatusResourceExhausted
	default:
		return StatusInvalid
	}
}

// ReplyTo builds the reply for a command result.
func ReplyTo(id uint32, err error) *Reply {
	r := &Reply{Status: StatusOf(err), WindowID: id}
	if err != nil {
		r.Message = err.Error()
		if len(r.Message) > MaxStringBytes {
			r.Message = r.Message[:MaxStringBytes]
		}
	}
	return r
}

// StatusError is the client-side error for a failed reply.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Message
}

// Is lets callers match replies against the registry sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch e.Status {
	case StatusNotFound:
		return target == registry.ErrNotFound
	case StatusResourceExhausted:
		return target == registry.ErrResourceExhausted
	case StatusInvalid:
		return target == registry.ErrInvalid
	case StatusProtocolError:
		return target == ErrProtocol
	}
	return false
}

// Err returns nil for StatusOK and a *StatusError otherwise.
func (r *Reply) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &StatusError{Status: r.Status, Message: r.Message}
}
