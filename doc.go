// Package dbus implements a client for the DBus interprocess
// communication protocol.
//
// The package operates at two levels. [Value] and [Signature] model
// the DBus wire type system directly: a Value is a tagged union with
// one arm per DBus type code, and a Signature is a parsed sequence of
// complete types. [Marshal] and [Unmarshal] convert between Values and
// wire bytes.
//
// [Conn] implements the connection-level protocol: authenticating to
// a message bus over a UNIX socket, assigning and tracking message
// serials, and dispatching incoming method returns, errors, and
// signals. [Client] builds on Conn to provide an ergonomic calling
// convention that consults a remote object's introspection data to
// infer object paths, interfaces, and signatures that the caller
// didn't specify explicitly.
//
// This package is a client only: it cannot export objects or answer
// incoming method calls. A Conn that receives a method_call message
// replies with org.freedesktop.DBus.Error.NotSupported and takes no
// other action.
package dbus
