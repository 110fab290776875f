package dbus

import (
	"context"
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ifaceProperties is the standard DBus interface used to read and
// write object properties.
const ifaceProperties = "org.freedesktop.DBus.Properties"

// Client wraps a [Conn] with the introspection-driven convenience
// layer described in spec.md 4.4: callers may omit an object path or
// interface name and have Client discover them by walking the
// destination's introspection tree.
//
// A Client caches every ObjectDescription it fetches, keyed by
// destination and path. The cache is never invalidated: introspection
// data is assumed stable for the lifetime of the Client, consistent
// with how real DBus services publish it.
type Client struct {
	conn *Conn

	mu    sync.Mutex
	cache map[introspectKey]*ObjectDescription
}

type introspectKey struct {
	destination string
	path        ObjectPath
}

// NewClient wraps conn in a Client.
func NewClient(conn *Conn) *Client {
	return &Client{
		conn:  conn,
		cache: map[introspectKey]*ObjectDescription{},
	}
}

// Conn returns the underlying connection.
func (c *Client) Conn() *Conn { return c.conn }

// Peer returns a handle to the bus name name, for building object and
// interface references.
func (c *Client) Peer(name string) Peer { return Peer{c: c, name: name} }

// Call invokes a method on destination.
//
// If path or iface is empty, Call resolves it by depth-first walking
// destination's introspection tree starting at path (or at "/" if
// path is empty), looking for an
// interface exposing a method named member; the first match wins. If
// sig is the zero Signature and resolution ran, the method's declared
// input argument types become sig. A resolution failure after
// exhausting the introspection tree returns a [ResolutionError].
func (c *Client) Call(ctx context.Context, destination string, path ObjectPath, iface, member string, sig Signature, body []Value) ([]Value, error) {
	if path == "" || iface == "" {
		rp, ri, rsig, err := c.resolveMember(ctx, destination, path, iface, member, memberMethod)
		if err != nil {
			return nil, err
		}
		path, iface = rp, ri
		if sig.IsZero() {
			sig = rsig
		}
	}
	return c.conn.call(ctx, destination, path, iface, member, sig, body, false)
}

// GetProperty reads a single property, resolving path and iface by
// introspection if either is empty.
func (c *Client) GetProperty(ctx context.Context, destination string, path ObjectPath, iface, name string) (Value, error) {
	if path == "" || iface == "" {
		rp, ri, _, err := c.resolveMember(ctx, destination, path, iface, name, memberProperty)
		if err != nil {
			return Value{}, err
		}
		path, iface = rp, ri
	}
	reply, err := c.conn.call(ctx, destination, path, ifaceProperties, "Get", MustParseSignature("ss"), []Value{Str(iface), Str(name)}, false)
	if err != nil {
		return Value{}, err
	}
	if len(reply) != 1 || reply[0].Kind() != KindVariant {
		return Value{}, ProtocolError{"Properties.Get reply did not contain a single variant"}
	}
	return reply[0].Inner(), nil
}

// SetProperty writes a single property, resolving path and iface by
// introspection if either is empty.
func (c *Client) SetProperty(ctx context.Context, destination string, path ObjectPath, iface, name string, val Value) error {
	if path == "" || iface == "" {
		rp, ri, _, err := c.resolveMember(ctx, destination, path, iface, name, memberProperty)
		if err != nil {
			return err
		}
		path, iface = rp, ri
	}
	_, err := c.conn.call(ctx, destination, path, ifaceProperties, "Set", MustParseSignature("ssv"), []Value{Str(iface), Str(name), VariantOf(val)}, false)
	return err
}

// GetAllProperties reads every readable property of iface at path.
func (c *Client) GetAllProperties(ctx context.Context, destination string, path ObjectPath, iface string) (map[string]Value, error) {
	reply, err := c.conn.call(ctx, destination, path, ifaceProperties, "GetAll", MustParseSignature("s"), []Value{Str(iface)}, false)
	if err != nil {
		return nil, err
	}
	if len(reply) != 1 || reply[0].Kind() != KindArray {
		return nil, ProtocolError{"Properties.GetAll reply did not contain a single array"}
	}
	ret := make(map[string]Value, len(reply[0].Elements()))
	for _, e := range reply[0].Elements() {
		ret[e.DictKey().Str()] = e.DictValue().Inner()
	}
	return ret, nil
}

// SubscribeSignal is a convenience over [Conn.SubscribeSignal] that
// builds a [Match] from optional destination, path, interface, and
// member filters: an empty string leaves that dimension unfiltered.
func (c *Client) SubscribeSignal(ctx context.Context, destination string, path ObjectPath, iface, member string) (*SignalSubscription, error) {
	m := NewMatch()
	if destination != "" {
		m.Sender(destination)
	}
	if path != "" {
		m.Path(path)
	}
	if iface != "" {
		m.Interface(iface)
	}
	if member != "" {
		m.Member(member)
	}
	return c.conn.SubscribeSignal(ctx, m)
}

// Introspect returns the parsed introspection description of
// destination's object at path, using and populating the client's
// cache.
func (c *Client) Introspect(ctx context.Context, destination string, path ObjectPath) (*ObjectDescription, error) {
	return c.introspect(ctx, destination, path)
}

func (c *Client) introspect(ctx context.Context, destination string, path ObjectPath) (*ObjectDescription, error) {
	key := introspectKey{destination, path}

	c.mu.Lock()
	desc, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return desc, nil
	}

	reply, err := c.conn.call(ctx, destination, path, "org.freedesktop.DBus.Introspectable", "Introspect", Signature{}, nil, false)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s %s: %w", destination, path, err)
	}
	if len(reply) != 1 || reply[0].Kind() != KindString {
		return nil, protoErrf("Introspect reply from %s %s did not contain a single string", destination, path)
	}

	desc = &ObjectDescription{}
	if err := xml.Unmarshal([]byte(reply[0].Str()), desc); err != nil {
		return nil, fmt.Errorf("parsing introspection XML from %s %s: %w", destination, path, err)
	}

	c.mu.Lock()
	c.cache[key] = desc
	c.mu.Unlock()
	return desc, nil
}

// memberKind distinguishes the two kinds of named member
// resolveMember can search an interface for.
type memberKind int

const (
	memberMethod memberKind = iota
	memberProperty
)

// resolveMember walks destination's introspection tree depth-first,
// starting at path (or "/" if path is empty), looking for an
// interface (iface, if non-empty, or any interface otherwise)
// exposing a method or property named member. The first match wins;
// interfaces at the same node are tried in sorted order for
// determinism.
func (c *Client) resolveMember(ctx context.Context, destination string, path ObjectPath, iface, member string, kind memberKind) (ObjectPath, string, Signature, error) {
	start := path
	if start == "" {
		start = "/"
	}

	visited := map[ObjectPath]bool{}
	var walkErr error
	var walk func(p ObjectPath) (ObjectPath, string, Signature, bool)
	walk = func(p ObjectPath) (ObjectPath, string, Signature, bool) {
		if visited[p] {
			return "", "", Signature{}, false
		}
		visited[p] = true

		desc, err := c.introspect(ctx, destination, p)
		if err != nil {
			return "", "", Signature{}, false
		}

		for _, ifName := range slices.Sorted(maps.Keys(desc.Interfaces)) {
			if iface != "" && ifName != iface {
				continue
			}
			ifaceDesc := desc.Interfaces[ifName]
			switch kind {
			case memberMethod:
				for _, m := range ifaceDesc.Methods {
					if m.Name == member {
						sig, err := inputSignature(m)
						if err != nil {
							walkErr = fmt.Errorf("resolving %s on %s %s: %w", member, destination, p, err)
						}
						return p, ifName, sig, true
					}
				}
			case memberProperty:
				for _, pr := range ifaceDesc.Properties {
					if pr.Name == member {
						return p, ifName, pr.Type, true
					}
				}
			}
		}

		for _, child := range desc.Children {
			if rp, ri, rsig, ok := walk(p.Child(child)); ok {
				return rp, ri, rsig, true
			}
		}
		return "", "", Signature{}, false
	}

	if rp, ri, rsig, ok := walk(start); ok {
		if walkErr != nil {
			return "", "", Signature{}, walkErr
		}
		return rp, ri, rsig, nil
	}
	return "", "", Signature{}, ResolutionError{
		Destination: destination,
		Member:      member,
		Reason:      "member not found after full introspection traversal",
	}
}

// inputSignature concatenates a method's declared input argument
// types into the Signature used to encode a call to it. A peer may
// advertise an <arg> whose type attribute is itself a multi-type
// signature rather than a single complete type; that is malformed
// introspection data, so it is reported as an error instead of
// panicking the caller's goroutine (the peer is untrusted input).
func inputSignature(m *MethodDescription) (Signature, error) {
	var sig Signature
	for _, arg := range m.In {
		if !arg.Type.IsSingle() {
			return Signature{}, fmt.Errorf("argument %q has malformed type signature %q (not a single complete type)", arg.Name, arg.Type)
		}
		sig = sig.Append(arg.Type.Single())
	}
	return sig, nil
}
