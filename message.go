package dbus

import (
	"fmt"
	"io"

	"github.com/nilcore/dbus/wire"
)

// protocolVersion is the only DBus wire protocol version this package
// understands.
const protocolVersion = 1

// Message is one complete DBus message: a method call, method return,
// error, or signal, as sent or received over a [Conn].
type Message struct {
	Type  msgType
	Flags byte
	Serial uint32

	header header

	// Body is the message's decoded argument list. Its signature is
	// header.BodySignature.
	Body []Value

	// FDs holds any file descriptors attached to the message.
	FDs FDs
}

// Path is the target object of a call, or source object of a signal.
func (m *Message) Path() ObjectPath { return m.header.Path }

// Interface is the target interface of a call, or source interface of
// a signal.
func (m *Message) Interface() string { return m.header.Interface }

// Member is the method or signal name.
func (m *Message) Member() string { return m.header.Member }

// ErrName is the error name of an error reply.
func (m *Message) ErrName() string { return m.header.ErrName }

// ReplySerial is the serial of the call this message replies to.
func (m *Message) ReplySerial() uint32 { return m.header.ReplySerial }

// Destination is the intended recipient of the message.
func (m *Message) Destination() string { return m.header.Destination }

// Sender is the unique bus name of the message's sender, as set by
// the bus.
func (m *Message) Sender() string { return m.header.Sender }

// Signature is the message body's type signature.
func (m *Message) Signature() Signature { return m.header.BodySignature }

// WantReply reports whether a method call message requires a reply.
func (m *Message) WantReply() bool { return wantReply(m.Type, m.Flags) }

// newCall builds a method call message. serial must be assigned by
// the caller (see [Conn]'s serial allocator).
func newCall(serial uint32, destination string, path ObjectPath, iface, member string, sig Signature, body []Value, noReply bool) *Message {
	var flags byte
	if noReply {
		flags |= 0x1
	}
	return &Message{
		Type:   msgTypeCall,
		Flags:  flags,
		Serial: serial,
		header: header{
			Path:          path,
			Interface:     iface,
			Member:        member,
			Destination:   destination,
			BodySignature: sig,
		},
		Body: body,
	}
}

// newReturn builds a method return message replying to call.
func newReturn(serial uint32, call *Message, sig Signature, body []Value) *Message {
	return &Message{
		Type:   msgTypeReturn,
		Serial: serial,
		header: header{
			ReplySerial:   call.Serial,
			Destination:   call.Sender(),
			BodySignature: sig,
		},
		Body: body,
	}
}

// newError builds an error reply to call.
func newError(serial uint32, call *Message, name, detail string) *Message {
	sig := MustParseSignature("s")
	body := []Value{Str(detail)}
	if detail == "" {
		sig = Signature{}
		body = nil
	}
	return &Message{
		Type:   msgTypeError,
		Serial: serial,
		header: header{
			ReplySerial:   call.Serial,
			Destination:   call.Sender(),
			ErrName:       name,
			BodySignature: sig,
		},
		Body: body,
	}
}

// newSignal builds a signal message.
func newSignal(serial uint32, path ObjectPath, iface, member string, sig Signature, body []Value) *Message {
	return &Message{
		Type:   msgTypeSignal,
		Serial: serial,
		header: header{
			Path:          path,
			Interface:     iface,
			Member:        member,
			BodySignature: sig,
		},
		Body: body,
	}
}

// EncodeMessage serializes m to DBus wire format using the given byte
// order.
func EncodeMessage(order wire.ByteOrder, m *Message) ([]byte, error) {
	if m.header.BodySignature.IsZero() && len(m.Body) > 0 {
		sig, err := signatureOfValues(m.Body)
		if err != nil {
			return nil, err
		}
		m.header.BodySignature = sig
	}
	if m.header.NumFDs == 0 && m.FDs.Len() > 0 {
		m.header.NumFDs = uint32(m.FDs.Len())
	}
	if err := m.header.valid(m.Type, m.Serial); err != nil {
		return nil, ProtocolError{fmt.Sprintf("outgoing message: %s", err)}
	}

	bodyBytes, err := Marshal(order, m.header.BodySignature, m.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding message body: %w", err)
	}
	if len(bodyBytes) > wire.MaxFrameBytes {
		return nil, ProtocolError{fmt.Sprintf("message body of %d bytes exceeds maximum of %d", len(bodyBytes), wire.MaxFrameBytes)}
	}

	e := wire.NewEncoder(order, nil)
	e.ByteOrderFlag()
	e.Byte(byte(m.Type))
	e.Byte(m.Flags)
	e.Byte(protocolVersion)
	e.Uint32(uint32(len(bodyBytes)))
	e.Uint32(m.Serial)
	if err := encodeValue(e, headerFieldsArrayType, ArrayOf(headerFieldType, m.header.fields())); err != nil {
		return nil, fmt.Errorf("encoding message header: %w", err)
	}
	e.Pad(wire.AlignInt64)
	e.Write(bodyBytes)
	return e.Out, nil
}

// DecodeMessage reads one complete message from r.
//
// DecodeMessage does not populate the returned message's FDs: the
// connection's read loop attaches them afterwards, taking the files
// the transport received as SCM_RIGHTS ancillary data.
func DecodeMessage(r io.Reader) (*Message, error) {
	// The byte order flag is the first octet on the wire; its value
	// doesn't depend on byte order, so any initial order works to
	// read it.
	d := wire.NewDecoder(wire.LittleEndian, r)
	if err := d.ByteOrderFlag(); err != nil {
		return nil, fmt.Errorf("reading byte order flag: %w", err)
	}

	typByte, err := d.Byte()
	if err != nil {
		return nil, fmt.Errorf("reading message type: %w", err)
	}
	flags, err := d.Byte()
	if err != nil {
		return nil, fmt.Errorf("reading message flags: %w", err)
	}
	version, err := d.Byte()
	if err != nil {
		return nil, fmt.Errorf("reading protocol version: %w", err)
	}
	if version != protocolVersion {
		return nil, ProtocolError{fmt.Sprintf("unsupported protocol version %d", version)}
	}
	bodyLen, err := d.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading body length: %w", err)
	}
	if bodyLen > wire.MaxFrameBytes {
		return nil, ProtocolError{fmt.Sprintf("message body of %d bytes exceeds maximum of %d", bodyLen, wire.MaxFrameBytes)}
	}
	serial, err := d.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading message serial: %w", err)
	}

	fieldsVal, err := decodeValue(d, headerFieldsArrayType)
	if err != nil {
		return nil, fmt.Errorf("reading message header fields: %w", err)
	}
	h, err := headerFromFields(fieldsVal.Elements())
	if err != nil {
		return nil, err
	}
	if err := d.Pad(wire.AlignInt64); err != nil {
		return nil, fmt.Errorf("reading header padding: %w", err)
	}

	t := msgType(typByte)
	if err := h.valid(t, serial); err != nil {
		return nil, ProtocolError{fmt.Sprintf("incoming message: %s", err)}
	}

	bodyBytes, err := d.Read(int(bodyLen))
	if err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	body, err := Unmarshal(d.Order, h.BodySignature, bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding message body (signature %q): %w", h.BodySignature, err)
	}

	return &Message{
		Type:   t,
		Flags:  flags,
		Serial: serial,
		header: *h,
		Body:   body,
	}, nil
}

// signatureOfValues derives the Signature describing a Value
// sequence, for callers that build a body without stating its
// signature up front.
func signatureOfValues(values []Value) (Signature, error) {
	var sig Signature
	for _, v := range values {
		sig = sig.Append(v.Type())
	}
	return sig, nil
}
