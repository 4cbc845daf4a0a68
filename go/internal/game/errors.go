package game

import (
	"errors"
	"fmt"
)

var (
	ErrNotInRoom      = errors.New("not in a room")
	ErrAlreadyPlaying = errors.New("already playing")
	ErrNotNominating  = errors.New("room is not nominating")
	ErrNotElecting    = errors.New("room is not electing")
	ErrNotDealer      = errors.New("only the dealer may choose")
	ErrIllegalMove    = errors.New("illegal room transition")
)

// ValidationError is a problem with client input. It is reported to the
// sender only and never ends the session.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// StoreError wraps a failed store operation. It is fatal to every player in
// the room.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
