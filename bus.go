package dbus

import (
	"context"
	"fmt"
)

// NameRequest is a request to take ownership of a bus name. See
// [Conn.RequestName] for detailed behavior.
type NameRequest struct {
	// Name is the bus name to request.
	Name string
	// ReplaceCurrent is whether to attempt to replace the current
	// primary owner of Name, if one exists. Replacement is only
	// possible if the current primary owner requested the name with
	// AllowReplacement set.
	ReplaceCurrent bool
	// NoQueue, if set, causes RequestName to return an error if
	// primary ownership of Name cannot be granted.
	NoQueue bool
	// AllowReplacement is whether to allow the requestor to be
	// replaced as primary owner, if another peer requests the name
	// with ReplaceCurrent set.
	AllowReplacement bool
}

func (r NameRequest) flags() uint32 {
	var flags uint32
	if r.AllowReplacement {
		flags |= 0x1
	}
	if r.ReplaceCurrent {
		flags |= 0x2
	}
	if r.NoQueue {
		flags |= 0x4
	}
	return flags
}

// RequestName asks the bus to assign an additional name to the Conn.
//
// A bus name has a single owner which receives DBus traffic for that
// name, and a queue of "backup" owners that are willing to take over
// should the current owner disconnect or abandon the name.
//
// If there are no other claims to the requested name, the Conn
// becomes the name's owner, and RequestName returns (true, nil). The
// options in [NameRequest] control behavior when there are multiple
// claims to the requested name. For a higher-level API that tracks
// ownership changes over time, see [Conn.Claim].
func (c *Conn) RequestName(ctx context.Context, req NameRequest) (isPrimaryOwner bool, err error) {
	reply, err := c.call(ctx, busDestination, busPath, busInterface, "RequestName", MustParseSignature("su"), []Value{Str(req.Name), Uint32(req.flags())}, false)
	if err != nil {
		return false, err
	}
	if len(reply) != 1 || reply[0].Kind() != KindUint32 {
		return false, ProtocolError{"RequestName reply did not contain a single uint32"}
	}
	switch reply[0].Uint32() {
	case 1: // became primary owner
		return true, nil
	case 2: // queued, not primary
		return false, nil
	case 3: // refused, NoQueue set
		return false, fmt.Errorf("requested name %q not available", req.Name)
	case 4: // already primary owner
		return true, nil
	default:
		return false, protoErrf("unknown response code %d to RequestName", reply[0].Uint32())
	}
}

// ReleaseName relinquishes ownership, or a queued claim, of name.
func (c *Conn) ReleaseName(ctx context.Context, name string) error {
	_, err := c.call(ctx, busDestination, busPath, busInterface, "ReleaseName", MustParseSignature("s"), []Value{Str(name)}, false)
	return err
}

// Peers lists the currently connected bus names.
func (c *Conn) Peers(ctx context.Context) ([]string, error) {
	reply, err := c.call(ctx, busDestination, busPath, busInterface, "ListNames", Signature{}, nil, false)
	if err != nil {
		return nil, err
	}
	return stringArray(reply, "ListNames")
}

// ActivatablePeers lists bus names that the bus can start a service
// for on demand, whether or not they are currently connected.
func (c *Conn) ActivatablePeers(ctx context.Context) ([]string, error) {
	reply, err := c.call(ctx, busDestination, busPath, busInterface, "ListActivatableNames", Signature{}, nil, false)
	if err != nil {
		return nil, err
	}
	return stringArray(reply, "ListActivatableNames")
}

// BusID returns the message bus's unique, randomly generated ID.
func (c *Conn) BusID(ctx context.Context) (string, error) {
	reply, err := c.call(ctx, busDestination, busPath, busInterface, "GetId", Signature{}, nil, false)
	if err != nil {
		return "", err
	}
	if len(reply) != 1 || reply[0].Kind() != KindString {
		return "", ProtocolError{"GetId reply did not contain a single string"}
	}
	return reply[0].Str(), nil
}

// Features returns the set of optional features the message bus
// implements.
func (c *Conn) Features(ctx context.Context) ([]string, error) {
	v, err := NewClient(c).GetProperty(ctx, busDestination, busPath, busInterface, "Features")
	if err != nil {
		return nil, err
	}
	if v.Kind() != KindArray {
		return nil, ProtocolError{"Features property was not an array"}
	}
	ret := make([]string, 0, len(v.Elements()))
	for _, e := range v.Elements() {
		ret = append(ret, e.Str())
	}
	return ret, nil
}

func stringArray(reply []Value, method string) ([]string, error) {
	if len(reply) != 1 || reply[0].Kind() != KindArray {
		return nil, protoErrf("%s reply did not contain a single array", method)
	}
	ret := make([]string, 0, len(reply[0].Elements()))
	for _, e := range reply[0].Elements() {
		ret = append(ret, e.Str())
	}
	return ret, nil
}

// ConnectionCredentials fetches the kernel-reported credentials of the
// connection that currently owns name, via
// org.freedesktop.DBus.GetConnectionCredentials. Well-known fields are
// "UnixUserID" (u), "ProcessID" (u), and "UnixGroupIDs" (au); the bus
// may also report others, which are returned as-is.
func (c *Conn) ConnectionCredentials(ctx context.Context, name string) (map[string]Value, error) {
	reply, err := c.call(ctx, busDestination, busPath, busInterface, "GetConnectionCredentials", MustParseSignature("s"), []Value{Str(name)}, false)
	if err != nil {
		return nil, err
	}
	if len(reply) != 1 || reply[0].Kind() != KindArray {
		return nil, ProtocolError{"GetConnectionCredentials reply did not contain a single array"}
	}
	ret := make(map[string]Value, len(reply[0].Elements()))
	for _, e := range reply[0].Elements() {
		ret[e.DictKey().Str()] = e.DictValue().Inner()
	}
	return ret, nil
}

// NameOwnerChanged is the decoded body of an
// org.freedesktop.DBus.NameOwnerChanged signal.
type NameOwnerChanged struct {
	Name     string
	OldOwner string // empty if the name had no previous owner
	NewOwner string // empty if the name now has no owner
}

// ParseNameOwnerChanged decodes a NameOwnerChanged signal's body.
func ParseNameOwnerChanged(rec *SignalRecord) (NameOwnerChanged, error) {
	if len(rec.Body) != 3 {
		return NameOwnerChanged{}, ProtocolError{"NameOwnerChanged signal did not have 3 body values"}
	}
	return NameOwnerChanged{
		Name:     rec.Body[0].Str(),
		OldOwner: rec.Body[1].Str(),
		NewOwner: rec.Body[2].Str(),
	}, nil
}

// PropertiesChanged is the decoded body of an
// org.freedesktop.DBus.Properties.PropertiesChanged signal (spec.md
// 4.4, C.3).
type PropertiesChanged struct {
	Interface   string
	Changed     map[string]Value
	Invalidated []string
}

// ParsePropertiesChanged decodes a PropertiesChanged signal's body.
func ParsePropertiesChanged(rec *SignalRecord) (PropertiesChanged, error) {
	if len(rec.Body) != 3 || rec.Body[0].Kind() != KindString || rec.Body[1].Kind() != KindArray || rec.Body[2].Kind() != KindArray {
		return PropertiesChanged{}, ProtocolError{"PropertiesChanged signal body did not match sa{sv}as"}
	}
	ret := PropertiesChanged{
		Interface: rec.Body[0].Str(),
		Changed:   map[string]Value{},
	}
	for _, e := range rec.Body[1].Elements() {
		ret.Changed[e.DictKey().Str()] = e.DictValue().Inner()
	}
	for _, e := range rec.Body[2].Elements() {
		ret.Invalidated = append(ret.Invalidated, e.Str())
	}
	return ret, nil
}

// InterfacesAdded is the decoded body of an
// org.freedesktop.DBus.ObjectManager.InterfacesAdded signal.
type InterfacesAdded struct {
	Path       ObjectPath
	Interfaces map[string]map[string]Value
}

// ParseInterfacesAdded decodes an InterfacesAdded signal's body.
func ParseInterfacesAdded(rec *SignalRecord) (InterfacesAdded, error) {
	if len(rec.Body) != 2 || rec.Body[0].Kind() != KindPath || rec.Body[1].Kind() != KindArray {
		return InterfacesAdded{}, ProtocolError{"InterfacesAdded signal body did not match oa{sa{sv}}"}
	}
	ret := InterfacesAdded{
		Path:       rec.Body[0].Path(),
		Interfaces: map[string]map[string]Value{},
	}
	for _, e := range rec.Body[1].Elements() {
		props := map[string]Value{}
		for _, pe := range e.DictValue().Elements() {
			props[pe.DictKey().Str()] = pe.DictValue().Inner()
		}
		ret.Interfaces[e.DictKey().Str()] = props
	}
	return ret, nil
}

// InterfacesRemoved is the decoded body of an
// org.freedesktop.DBus.ObjectManager.InterfacesRemoved signal.
type InterfacesRemoved struct {
	Path       ObjectPath
	Interfaces []string
}

// ParseInterfacesRemoved decodes an InterfacesRemoved signal's body.
func ParseInterfacesRemoved(rec *SignalRecord) (InterfacesRemoved, error) {
	if len(rec.Body) != 2 || rec.Body[0].Kind() != KindPath || rec.Body[1].Kind() != KindArray {
		return InterfacesRemoved{}, ProtocolError{"InterfacesRemoved signal body did not match oas"}
	}
	ret := InterfacesRemoved{Path: rec.Body[0].Path()}
	for _, e := range rec.Body[1].Elements() {
		ret.Interfaces = append(ret.Interfaces, e.Str())
	}
	return ret, nil
}
