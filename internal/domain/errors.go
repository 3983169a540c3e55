package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure that is shown to the player.
type Kind int

const (
	KindTechnical Kind = iota
	KindNotLinked
	KindSlotsFull
	KindNotOnline
	KindSpeciesMismatch
	KindMultipleStaged
	KindNotOwner
	KindNotFound
	KindInsufficientFunds
	KindInvalidArgs
)

func (k Kind) String() string {
	switch k {
	case KindNotLinked:
		return "not_linked"
	case KindSlotsFull:
		return "slots_full"
	case KindNotOnline:
		return "not_online"
	case KindSpeciesMismatch:
		return "species_mismatch"
	case KindMultipleStaged:
		return "multiple_staged"
	case KindNotOwner:
		return "not_owner"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidArgs:
		return "invalid_args"
	default:
		return "technical"
	}
}

// Error is the tagged failure returned by the service layer.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrSlotsFull) works
// on wrapped instances carrying extra detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotLinked         = &Error{Kind: KindNotLinked, Msg: "steam account not linked"}
	ErrSlotsFull         = &Error{Kind: KindSlotsFull, Msg: "dino slots full"}
	ErrNotOnline         = &Error{Kind: KindNotOnline, Msg: "player not on server"}
	ErrSpeciesMismatch   = &Error{Kind: KindSpeciesMismatch, Msg: "species mismatch"}
	ErrMultipleStaged    = &Error{Kind: KindMultipleStaged, Msg: "multiple staged saves"}
	ErrNotOwner          = &Error{Kind: KindNotOwner, Msg: "dino belongs to another player"}
	ErrDinoNotFound      = &Error{Kind: KindNotFound, Msg: "dino not found"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Msg: "insufficient balance"}
	ErrInvalidArgs       = &Error{Kind: KindInvalidArgs, Msg: "invalid arguments"}
)

// Technical wraps an infrastructure failure.
func Technical(op string, err error) error {
	return &Error{Kind: KindTechnical, Msg: op, Err: err}
}

// KindOf returns the kind of err, KindTechnical for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTechnical
}
