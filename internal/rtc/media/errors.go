package media

import (
	"errors"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("NotAllowedError: permission denied")
	ErrDeviceNotFound   = errors.New("NotFoundError: requested device not found")
	ErrNotSupported     = errors.New("NotSupportedError: media capture not supported")
	ErrReleased         = errors.New("media released during acquisition")
)

type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission-denied"
	KindDeviceNotFound   ErrorKind = "device-not-found"
	KindNotSupported     ErrorKind = "not-supported"
	KindGeneric          ErrorKind = "generic"
)

// Error is an acquisition failure. It is always terminal for the attempt.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *Error) Message() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "We need access to your camera and microphone. Allow access in the browser address bar and try again."
	case KindDeviceNotFound:
		return "Camera or microphone not found. Check that they are connected and working."
	case KindNotSupported:
		return "Your browser does not support video calls. Use an up to date Chrome, Firefox or Safari."
	default:
		return "Could not access camera and microphone."
	}
}

// Classify maps a capture failure to a kind using sentinel errors first and
// the error text second.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &Error{Kind: KindPermissionDenied, Err: err}
	case errors.Is(err, ErrDeviceNotFound):
		return &Error{Kind: KindDeviceNotFound, Err: err}
	case errors.Is(err, ErrNotSupported):
		return &Error{Kind: KindNotSupported, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "notallowed"), strings.Contains(msg, "permission"):
		return &Error{Kind: KindPermissionDenied, Err: err}
	case strings.Contains(msg, "notfound"), strings.Contains(msg, "device"):
		return &Error{Kind: KindDeviceNotFound, Err: err}
	case strings.Contains(msg, "notsupported"), strings.Contains(msg, "not supported"):
		return &Error{Kind: KindNotSupported, Err: err}
	}
	return &Error{Kind: KindGeneric, Err: err}
}
