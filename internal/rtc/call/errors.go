package call

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
)

var (
	ErrCallActive       = errors.New("call already in progress")
	ErrCallClosed       = errors.New("call finalized")
	ErrConnectTimeout   = errors.New("connection timeout: peer did not connect in time")
	ErrConnectionLost   = errors.New("network: connection degraded")
	ErrICEFailed        = errors.New("ice connection failed")
	ErrOffline          = errors.New("network offline")
	ErrTransportDown    = errors.New("signaling transport disconnected")
	ErrUnsupported      = errors.New("webrtc not supported by runtime")
	ErrMissingSDP       = errors.New("signal without session description")
	ErrMissingRemote    = errors.New("remote identity is required")
	ErrMissingSessionID = errors.New("session id is required")
)

type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission-denied"
	KindDeviceNotFound     ErrorKind = "device-not-found"
	KindBrowserUnsupported ErrorKind = "browser-unsupported"
	KindNetworkTimeout     ErrorKind = "network-timeout"
	KindICEFailure         ErrorKind = "ice-failure"
	KindSignalingError     ErrorKind = "signaling-error"
	KindGeneric            ErrorKind = "generic"
)

// Action tells the UI which remediation to offer.
type Action string

const (
	ActionRetry           Action = "retry"
	ActionReload          Action = "reload"
	ActionGrantPermission Action = "grant-permission"
	ActionCheckDevice     Action = "check-device"
	ActionUpdateBrowser   Action = "update-browser"
	ActionContactSupport  Action = "contact-support"
)

type Error struct {
	Kind ErrorKind
	Err  error
	// Exhausted is set once the reconnect budget is spent.
	Exhausted bool
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Exhausted {
		msg += " (retries exhausted)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the reconnect policy may run for this failure.
func (e *Error) Retryable() bool {
	if e.Exhausted {
		return false
	}
	switch e.Kind {
	case KindNetworkTimeout, KindICEFailure, KindSignalingError, KindGeneric:
		return true
	}
	return false
}

func (e *Error) Message() string {
	if e.Exhausted {
		return "Could not establish a stable connection. Please contact technical support."
	}
	switch e.Kind {
	case KindPermissionDenied:
		return "We need access to your camera and microphone. Allow access in the browser and try again."
	case KindDeviceNotFound:
		return "Camera or microphone not found. Check that they are connected and working."
	case KindBrowserUnsupported:
		return "Your browser does not support video calls. Use an up to date Chrome, Firefox or Safari."
	case KindNetworkTimeout:
		return "The connection is taking longer than usual. This may be caused by your internet connection or a firewall."
	case KindICEFailure:
		return "Connectivity problem detected. Check your internet connection."
	case KindSignalingError:
		return "Lost contact with the server."
	default:
		return "Something went wrong with the call."
	}
}

func (e *Error) Action() Action {
	if e.Exhausted {
		return ActionContactSupport
	}
	switch e.Kind {
	case KindPermissionDenied:
		return ActionGrantPermission
	case KindDeviceNotFound:
		return ActionCheckDevice
	case KindBrowserUnsupported:
		return ActionUpdateBrowser
	}
	if e.Retryable() {
		return ActionRetry
	}
	return ActionReload
}

func (e *Error) exhausted() *Error {
	return &Error{Kind: e.Kind, Err: e.Err, Exhausted: true}
}

var patterns = []struct {
	re   *regexp.Regexp
	kind ErrorKind
}{
	{regexp.MustCompile(`\b(network|timeout|timed out|offline)\b`), KindNetworkTimeout},
	{regexp.MustCompile(`\bice\b`), KindICEFailure},
	{regexp.MustCompile(`permission|notallowed`), KindPermissionDenied},
	{regexp.MustCompile(`notfound|not found|device`), KindDeviceNotFound},
	{regexp.MustCompile(`browser|webrtc|not ?supported`), KindBrowserUnsupported},
	{regexp.MustCompile(`signal|websocket|relay`), KindSignalingError},
}

// Classify maps any failure to a call error. Typed errors win, then the
// message is matched against known patterns, then Generic.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var me *media.Error
	if errors.As(err, &me) {
		switch me.Kind {
		case media.KindPermissionDenied:
			return newError(KindPermissionDenied, err)
		case media.KindDeviceNotFound:
			return newError(KindDeviceNotFound, err)
		case media.KindNotSupported:
			return newError(KindBrowserUnsupported, err)
		default:
			return newError(KindGeneric, err)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindNetworkTimeout, err)
	case errors.Is(err, signaling.ErrNotConnected):
		return newError(KindSignalingError, err)
	}

	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if p.re.MatchString(msg) {
			return newError(p.kind, err)
		}
	}
	return newError(KindGeneric, err)
}
