package dbus

import "fmt"

// msgType is the type of a DBus message.
type msgType byte

const (
	msgTypeCall msgType = iota + 1
	msgTypeReturn
	msgTypeError
	msgTypeSignal
)

// Header field codes, per the DBus specification's header field
// table.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldUnixFDs     = 9
)

// headerFieldType is the DBus type of one entry in a message header's
// field array: a (byte, variant) struct.
var headerFieldType = &Type{Kind: KindStruct, Fields: []*Type{basic(KindByte), basic(KindVariant)}}

// headerFieldsArrayType is the type of the whole field array, a(yv).
var headerFieldsArrayType = &Type{Kind: KindArray, Elem: headerFieldType}

// header carries a DBus message's header fields: routing information
// that sits alongside the fixed prologue (byte order, type, flags,
// serial) handled directly by [EncodeMessage] and [DecodeMessage].
type header struct {
	// Path is the target object for a call, or the source object for
	// a signal. Required for msgTypeCall and msgTypeSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the source
	// interface for a signal. Required for msgTypeSignal; optional
	// for msgTypeCall.
	Interface string
	// Member is the method name for a call, or the signal name for a
	// signal. Required for msgTypeCall and msgTypeSignal.
	Member string
	// ErrName is the name of the error that occurred. Required for
	// msgTypeError.
	ErrName string
	// ReplySerial is the message serial this message is replying to.
	// Required for msgTypeReturn and msgTypeError.
	ReplySerial uint32
	// Destination is the target for a message. Optional for signals,
	// required for everything else on a message bus.
	Destination string
	// Sender is the unique name of the message's sender. The bus
	// populates this field itself; any value a client sends is
	// ignored.
	Sender string
	// BodySignature is the type signature of the message body.
	// Required whenever the message has a body.
	BodySignature Signature
	// NumFDs is the number of file descriptors attached to the
	// message. Required if any are attached.
	NumFDs uint32

	// Unknown collects header fields this package doesn't recognize,
	// keyed by field code. The DBus spec requires implementations to
	// ignore unknown fields rather than reject the message.
	Unknown map[byte]Value
}

// fields renders h as the Value sequence encoded in a message's
// a(yv) header field array.
func (h *header) fields() []Value {
	var fs []Value
	add := func(code byte, v Value) {
		fs = append(fs, StructOf(Byte(code), VariantOf(v)))
	}
	if h.Path != "" {
		add(fieldPath, Path(h.Path))
	}
	if h.Interface != "" {
		add(fieldInterface, Str(h.Interface))
	}
	if h.Member != "" {
		add(fieldMember, Str(h.Member))
	}
	if h.ErrName != "" {
		add(fieldErrName, Str(h.ErrName))
	}
	if h.ReplySerial != 0 {
		add(fieldReplySerial, Uint32(h.ReplySerial))
	}
	if h.Destination != "" {
		add(fieldDestination, Str(h.Destination))
	}
	if h.Sender != "" {
		add(fieldSender, Str(h.Sender))
	}
	if !h.BodySignature.IsZero() {
		add(fieldSignature, Sig(h.BodySignature))
	}
	if h.NumFDs != 0 {
		add(fieldUnixFDs, Uint32(h.NumFDs))
	}
	return fs
}

// headerFromFields parses a message's decoded a(yv) field array into
// a header.
func headerFromFields(fs []Value) (*header, error) {
	h := &header{}
	for _, f := range fs {
		kv := f.Fields()
		code := kv[0].Byte()
		val := kv[1].Inner()
		switch code {
		case fieldPath:
			h.Path = val.Path()
		case fieldInterface:
			h.Interface = val.Str()
		case fieldMember:
			h.Member = val.Str()
		case fieldErrName:
			h.ErrName = val.Str()
		case fieldReplySerial:
			h.ReplySerial = val.Uint32()
		case fieldDestination:
			h.Destination = val.Str()
		case fieldSender:
			h.Sender = val.Str()
		case fieldSignature:
			sig, err := ParseSignature(val.SignatureString())
			if err != nil {
				return nil, fmt.Errorf("invalid body signature in header: %w", err)
			}
			h.BodySignature = sig
		case fieldUnixFDs:
			h.NumFDs = val.Uint32()
		default:
			if h.Unknown == nil {
				h.Unknown = map[byte]Value{}
			}
			h.Unknown[code] = val
		}
	}
	return h, nil
}

// valid checks that h is well formed for a message of the given type,
// per the DBus specification's per-type required field list.
func (h *header) valid(t msgType, serial uint32) error {
	if serial == 0 {
		return fmt.Errorf("invalid message with zero serial")
	}
	switch t {
	case msgTypeCall:
		if h.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if h.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	case msgTypeReturn:
		if h.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
	case msgTypeError:
		if h.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
		if h.ErrName == "" {
			return fmt.Errorf("missing required header field ErrName")
		}
	case msgTypeSignal:
		if h.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if h.Interface == "" {
			return fmt.Errorf("missing required header field Interface")
		}
		if h.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	default:
		return fmt.Errorf("invalid message type %d", t)
	}
	return nil
}

// wantReply reports whether a call message requires a response, per
// the no-reply-expected flag bit.
func wantReply(t msgType, flags byte) bool {
	return t == msgTypeCall && flags&0x1 == 0
}
