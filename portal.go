package dbus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// ifacePortalRequest is the interface every xdg-desktop-portal Request
// object implements.
const ifacePortalRequest = "org.freedesktop.portal.Request"

var portalTokenCounter atomic.Uint64

// NewPortalToken generates a handle_token suitable for inclusion in
// the options dict of an xdg-desktop-portal method call. Tokens only
// need to be unique per connection, per spec.md 4.4's description of
// the portal Request pattern.
func NewPortalToken() string {
	return fmt.Sprintf("dbus%d", portalTokenCounter.Add(1))
}

// PortalCall invokes a method on an xdg-desktop-portal interface that
// follows the Request pattern: rather than replying with the result
// directly, the portal replies with the path of a transient Request
// object, then later emits that object's Response signal with the
// actual outcome.
//
// handleToken must be the same token the caller included under the
// "handle_token" key of the options dict passed in body, so PortalCall
// can predict the Request object's path and subscribe to its Response
// signal before the call is even sent (closing the race between
// issuing the call and the portal emitting its response).
//
// PortalCall returns the Response signal's results dict on success
// (response code 0), or a [PortalError] for any other response code.
func (c *Client) PortalCall(ctx context.Context, destination string, path ObjectPath, iface, member string, sig Signature, body []Value, handleToken string) (Value, error) {
	predicted := c.predictedRequestPath(handleToken)
	sub, err := c.subscribeResponse(ctx, predicted)
	if err != nil {
		return Value{}, err
	}
	defer sub.Close()

	reply, err := c.Call(ctx, destination, path, iface, member, sig, body)
	if err != nil {
		return Value{}, err
	}
	if len(reply) != 1 || reply[0].Kind() != KindPath {
		return Value{}, ProtocolError{"portal call reply did not contain a single object path"}
	}

	var extra *SignalSubscription
	if actual := reply[0].Path(); actual != predicted {
		extra, err = c.subscribeResponse(ctx, actual)
		if err != nil {
			return Value{}, err
		}
		defer extra.Close()
	}

	return awaitPortalResponse(ctx, sub, extra)
}

// predictedRequestPath computes the Request object path the portal is
// expected to use for a call made with the given handle_token, per the
// xdg-desktop-portal convention: the caller's unique bus name with the
// leading ':' stripped and every '.' replaced by '_'.
func (c *Client) predictedRequestPath(handleToken string) ObjectPath {
	sender := strings.TrimPrefix(c.conn.UniqueName(), ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return ObjectPath("/org/freedesktop/portal/desktop/request/" + sender + "/" + handleToken)
}

func (c *Client) subscribeResponse(ctx context.Context, path ObjectPath) (*SignalSubscription, error) {
	m := NewMatch().Path(path).Interface(ifacePortalRequest).Member("Response")
	return c.conn.SubscribeSignal(ctx, m)
}

// awaitPortalResponse waits for a Response signal on either sub or
// extra (extra may be nil, if the portal's actual Request path matched
// the predicted one).
func awaitPortalResponse(ctx context.Context, sub, extra *SignalSubscription) (Value, error) {
	var extraCh <-chan *SignalRecord
	if extra != nil {
		extraCh = extra.Chan()
	}
	select {
	case rec, ok := <-sub.Chan():
		if !ok {
			return Value{}, ErrDisconnected
		}
		return decodePortalResponse(rec)
	case rec, ok := <-extraCh:
		if !ok {
			return Value{}, ErrDisconnected
		}
		return decodePortalResponse(rec)
	case <-ctx.Done():
		return Value{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

func decodePortalResponse(rec *SignalRecord) (Value, error) {
	if len(rec.Body) != 2 || rec.Body[0].Kind() != KindUint32 || rec.Body[1].Kind() != KindArray {
		return Value{}, ProtocolError{"portal Response signal body did not match ua{sv}"}
	}
	response := rec.Body[0].Uint32()
	if response != 0 {
		return Value{}, PortalError{Response: response, Results: resultsDict(rec.Body[1])}
	}
	return rec.Body[1], nil
}

// resultsDict decodes a portal Response signal's a{sv} results value
// into a plain map, for attaching to a [PortalError] as partial
// results.
func resultsDict(v Value) map[string]Value {
	ret := make(map[string]Value, len(v.Elements()))
	for _, e := range v.Elements() {
		ret[e.DictKey().Str()] = e.DictValue().Inner()
	}
	return ret
}
