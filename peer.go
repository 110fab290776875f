package dbus

import "context"

// ifacePeer is the standard DBus interface offering Ping and
// GetMachineId.
const ifacePeer = "org.freedesktop.DBus.Peer"

// Peer is a handle to a bus name, the starting point for addressing
// objects on it.
type Peer struct {
	c    *Client
	name string
}

// Name returns the peer's bus name, as given to [Client.Peer].
func (p Peer) Name() string { return p.name }

// Client returns the [Client] that created p.
func (p Peer) Client() *Client { return p.c }

// Conn returns the underlying connection.
func (p Peer) Conn() *Conn { return p.c.conn }

// Object returns a handle to the object at path on this peer.
func (p Peer) Object(path ObjectPath) Object { return Object{p: p, path: path} }

// Ping calls org.freedesktop.DBus.Peer.Ping on the peer's root object,
// the conventional way to check whether a bus name is alive and
// responsive.
func (p Peer) Ping(ctx context.Context) error {
	_, err := p.c.conn.call(ctx, p.name, "/", ifacePeer, "Ping", Signature{}, nil, false)
	return err
}

// MachineID returns the machine ID of the host running the peer, via
// org.freedesktop.DBus.Peer.GetMachineId.
func (p Peer) MachineID(ctx context.Context) (string, error) {
	reply, err := p.c.conn.call(ctx, p.name, "/", ifacePeer, "GetMachineId", Signature{}, nil, false)
	if err != nil {
		return "", err
	}
	if len(reply) != 1 || reply[0].Kind() != KindString {
		return "", ProtocolError{"GetMachineId reply did not contain a single string"}
	}
	return reply[0].Str(), nil
}
