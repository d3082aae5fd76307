package gateway

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIDNotFound is returned when a create or attach reply succeeds but does
// not carry data.id.
var ErrIDNotFound = errors.New("id not found in response")

// Error is a reply with janus == "error".
type Error struct {
	Code   int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Reason)
}

// UnexpectedResponseError covers every reply that is neither a recognised
// success nor a gateway error: an unknown janus value, or a body that is not
// a JSON envelope at all.
type UnexpectedResponseError struct {
	Status int
	Janus  string
	Body   string
	Err    error
}

func (e *UnexpectedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected gateway response (HTTP %d): %v: %s", e.Status, e.Err, e.Body)
	}
	return fmt.Sprintf("unexpected gateway response (HTTP %d, janus=%q): %s", e.Status, e.Janus, e.Body)
}

func (e *UnexpectedResponseError) Unwrap() error { return e.Err }
