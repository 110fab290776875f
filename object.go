package dbus

import (
	"cmp"
	"context"
)

// Object is a handle to a single object exposed by a [Peer].
type Object struct {
	p    Peer
	path ObjectPath
}

// Conn returns the underlying connection.
func (o Object) Conn() *Conn { return o.p.Conn() }

// Peer returns the peer that hosts the object.
func (o Object) Peer() Peer { return o.p }

// Path returns the object's path.
func (o Object) Path() ObjectPath { return o.path }

// Child returns the object at the given path segment relative to o.
func (o Object) Child(segment string) Object {
	return Object{p: o.p, path: o.path.Child(segment)}
}

// Interface returns a handle to one of the object's interfaces.
func (o Object) Interface(name string) Interface {
	return Interface{o: o, name: name}
}

// Introspect fetches and parses the object's introspection XML,
// through the owning [Client]'s cache.
func (o Object) Introspect(ctx context.Context) (*ObjectDescription, error) {
	return o.p.c.introspect(ctx, o.p.name, o.path)
}

// Compare orders objects first by peer name, then by path, with the
// same convention as [cmp.Compare].
func (o Object) Compare(other Object) int {
	if ret := cmp.Compare(o.p.name, other.p.name); ret != 0 {
		return ret
	}
	return cmp.Compare(o.path, other.path)
}
