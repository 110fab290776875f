package dbus

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned by pending calls and signal
// subscriptions when the underlying [Conn] is closed or the transport
// drops out from under it.
var ErrDisconnected = errors.New("dbus: connection closed")

// ProtocolError reports a violation of the DBus wire protocol: a
// malformed message, an unparseable signature, or data that does not
// match its declared signature.
type ProtocolError struct {
	Detail string
}

func (e ProtocolError) Error() string { return fmt.Sprintf("dbus protocol error: %s", e.Detail) }

func protoErrf(format string, args ...any) error {
	return ProtocolError{fmt.Sprintf(format, args...)}
}

// AuthError reports a failure of the SASL authentication handshake
// performed when opening a connection.
type AuthError struct {
	Detail string
}

func (e AuthError) Error() string { return fmt.Sprintf("dbus auth error: %s", e.Detail) }

// CallError is the error returned from a method call that the remote
// peer rejected by replying with an org.freedesktop.DBus.Error
// message.
type CallError struct {
	// Name is the DBus error name provided by the remote peer, e.g.
	// "org.freedesktop.DBus.Error.UnknownMethod".
	Name string
	// Detail is the human-readable explanation of what went wrong, if
	// the remote peer provided one as the first string argument of the
	// error reply.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}

// ResolutionError reports that [Client] could not infer an object
// path, interface, or argument signature for a call from the
// destination's introspection data.
type ResolutionError struct {
	Destination string
	Member      string
	Reason      string
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s on %s: %s", e.Member, e.Destination, e.Reason)
}

// PortalError reports that an xdg-desktop-portal Request concluded
// with a non-success response code.
//
// Response follows the xdg-desktop-portal convention: 1 means the
// user interaction was cancelled, and 2 means some other error
// occurred. Results carries whatever the portal included in the
// Response signal's results dict even in failure, which some portals
// use to explain what went wrong.
type PortalError struct {
	Response uint32
	Detail   string
	Results  map[string]Value
}

func (e PortalError) Error() string {
	switch e.Response {
	case 1:
		return "portal request cancelled by user"
	case 2:
		return fmt.Sprintf("portal request failed: %s", e.Detail)
	default:
		return fmt.Sprintf("portal request ended with response code %d", e.Response)
	}
}

// Cancelled reports whether err resulted from the cancellation of a
// call's context, as opposed to a protocol, auth, or remote error.
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// ErrCancelled wraps a call's context cancellation so that callers can
// distinguish "I cancelled this" from "the remote end failed".
var ErrCancelled = errors.New("dbus: call cancelled")
