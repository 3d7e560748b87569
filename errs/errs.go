// Package errs defines the error taxonomy shared across capone's core
// packages. Operations wrap a sentinel Kind so callers can classify a
// failure with errors.Is without depending on a specific package's
// error variables.
package errs

import "errors"

// Kind is one of the error classes from the design's error taxonomy.
type Kind error

var (
	Config        Kind = errors.New("config")
	Io            Kind = errors.New("io")
	Protocol      Kind = errors.New("protocol")
	Crypto        Kind = errors.New("crypto")
	Unauthorized  Kind = errors.New("unauthorized")
	NotFound      Kind = errors.New("not found")
	Invalid       Kind = errors.New("invalid")
)

// wrapped associates a Kind with a specific message, while still
// satisfying errors.Is(err, kind).
type wrapped struct {
	kind Kind
	msg  string
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Unwrap() error { return w.kind }

// New returns an error of the given kind with the supplied message.
func New(kind Kind, msg string) error {
	return &wrapped{kind: kind, msg: msg}
}

// Wrap returns an error of the given kind whose message is msg followed
// by err's message. errors.Is matches kind; err itself is not kept in
// the chain, so a Kind err carried is not matched.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return New(kind, msg)
	}
	return &wrapped{kind: kind, msg: msg + ": " + err.Error()}
}

// KindOf recovers the Kind an error was constructed with via New or
// Wrap, or the Kind itself if err is one of the sentinel values
// directly. Errors not produced by this package classify as Invalid,
// matching the design's "unknown command" tie-break.
func KindOf(err error) Kind {
	switch err {
	case Config, Io, Protocol, Crypto, Unauthorized, NotFound, Invalid:
		return err
	}
	var w *wrapped
	if errors.As(err, &w) {
		return w.kind
	}
	return Invalid
}
