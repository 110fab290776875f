package dbus

import (
	"context"
	"fmt"
)

// Interface is a handle to one interface offered by an [Object].
//
// Unlike [Client.Call], Interface never performs introspection-based
// resolution: path and interface are already fully specified by the
// time a caller has one.
type Interface struct {
	o    Object
	name string
}

// Conn returns the underlying connection.
func (f Interface) Conn() *Conn { return f.o.Conn() }

// Peer returns the peer offering the interface.
func (f Interface) Peer() Peer { return f.o.Peer() }

// Object returns the object implementing the interface.
func (f Interface) Object() Object { return f.o }

// Name returns the interface's name.
func (f Interface) Name() string { return f.name }

func (f Interface) String() string {
	if f.name == "" {
		return fmt.Sprintf("%s%s:<no interface>", f.o.p.name, f.o.path)
	}
	return fmt.Sprintf("%s%s:%s", f.o.p.name, f.o.path, f.name)
}

// Call invokes method on the interface, blocking for the reply.
//
// sig may be the zero Signature, in which case it is derived from
// body's value kinds.
func (f Interface) Call(ctx context.Context, method string, sig Signature, body []Value) ([]Value, error) {
	return f.Conn().call(ctx, f.o.p.name, f.o.path, f.name, method, sig, body, false)
}

// OneWay invokes method on the interface without waiting for, or even
// requesting, a reply.
func (f Interface) OneWay(ctx context.Context, method string, sig Signature, body []Value) error {
	_, err := f.Conn().call(ctx, f.o.p.name, f.o.path, f.name, method, sig, body, true)
	return err
}

// GetProperty reads the current value of a property.
func (f Interface) GetProperty(ctx context.Context, name string) (Value, error) {
	return f.o.p.c.GetProperty(ctx, f.o.p.name, f.o.path, f.name, name)
}

// SetProperty writes a property's value.
func (f Interface) SetProperty(ctx context.Context, name string, val Value) error {
	return f.o.p.c.SetProperty(ctx, f.o.p.name, f.o.path, f.name, name, val)
}

// GetAllProperties reads every readable property exposed by the
// interface.
func (f Interface) GetAllProperties(ctx context.Context) (map[string]Value, error) {
	return f.o.p.c.GetAllProperties(ctx, f.o.p.name, f.o.path, f.name)
}

// SubscribeSignal subscribes to signals named member, emitted by this
// exact interface instance.
func (f Interface) SubscribeSignal(ctx context.Context, member string) (*SignalSubscription, error) {
	m := NewMatch().Sender(f.o.p.name).Path(f.o.path).Interface(f.name).Member(member)
	return f.Conn().SubscribeSignal(ctx, m)
}
