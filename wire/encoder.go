package wire

import "math"

// An Encoder writes DBus wire-format bytes to an internal buffer,
// taking care of alignment padding as it goes.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
// Offsets are measured from the start of the buffer the Encoder was
// created with, which the caller chooses to be either the start of a
// message header or the start of a message body.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output so far.
	Out []byte
}

// NewEncoder returns an Encoder that appends to buf using the given
// byte order.
func NewEncoder(order ByteOrder, buf []byte) *Encoder {
	return &Encoder{Order: order, Out: buf}
}

// Pad inserts zero bytes as needed to make len(e.Out) a multiple of
// align. If the buffer is already aligned, no padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write appends bs verbatim. It is the caller's responsibility to
// ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Byte writes a single byte with no alignment requirement.
func (e *Encoder) Byte(b byte) {
	e.Out = append(e.Out, b)
}

// Bool writes a boolean, wire-encoded as a 32-bit 0 or 1.
func (e *Encoder) Bool(b bool) {
	if b {
		e.Uint32(1)
	} else {
		e.Uint32(0)
	}
}

// Int16 writes a signed 16-bit integer.
func (e *Encoder) Int16(v int16) { e.Uint16(uint16(v)) }

// Uint16 writes an unsigned 16-bit integer.
func (e *Encoder) Uint16(v uint16) {
	e.Pad(AlignInt16)
	e.Out = e.Order.AppendUint16(e.Out, v)
}

// Int32 writes a signed 32-bit integer.
func (e *Encoder) Int32(v int32) { e.Uint32(uint32(v)) }

// Uint32 writes an unsigned 32-bit integer.
func (e *Encoder) Uint32(v uint32) {
	e.Pad(AlignInt32)
	e.Out = e.Order.AppendUint32(e.Out, v)
}

// Int64 writes a signed 64-bit integer.
func (e *Encoder) Int64(v int64) { e.Uint64(uint64(v)) }

// Uint64 writes an unsigned 64-bit integer.
func (e *Encoder) Uint64(v uint64) {
	e.Pad(AlignInt64)
	e.Out = e.Order.AppendUint64(e.Out, v)
}

// Float64 writes an IEEE-754 double.
func (e *Encoder) Float64(v float64) {
	e.Uint64(math.Float64bits(v))
}

// Bytes writes a length-prefixed byte array, used for the payload of
// DBus arrays of non-struct elements where the caller has already
// serialized the elements.
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(AlignInt32)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes a length-prefixed, NUL-terminated UTF-8 string, used
// for the DBus 's' and 'o' types.
func (e *Encoder) String(s string) {
	e.Pad(AlignInt32)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a length-prefixed, NUL-terminated signature
// string, used for the DBus 'g' type. Unlike [Encoder.String], the
// length prefix is a single byte.
func (e *Encoder) Signature(s string) {
	e.Out = append(e.Out, byte(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Array writes an array. elements is called to serialize the array's
// payload; it must write only the array's elements, including any
// inter-element alignment padding, but not the leading padding to the
// element's alignment, which Array inserts itself once the length
// prefix is known.
//
// firstElementAlign is the alignment of the array's element type.
func (e *Encoder) Array(firstElementAlign int, elements func()) {
	e.Pad(AlignInt32)
	lenOffset := len(e.Out)
	e.Uint32(0) // placeholder, patched below
	e.Pad(firstElementAlign)

	start := len(e.Out)
	elements()
	length := len(e.Out) - start
	e.Order.PutUint32(e.Out[lenOffset:], uint32(length))
}

// Struct writes a struct. fields is called to serialize the struct's
// fields in order.
func (e *Encoder) Struct(fields func()) {
	e.Pad(AlignInt64)
	fields()
}

// DictEntry writes a dict entry. kv is called to serialize the key
// then the value, in order.
func (e *Encoder) DictEntry(kv func()) {
	e.Pad(AlignInt64)
	kv()
}

// ByteOrderFlag writes the DBus byte order marker byte ('l' or 'B')
// that matches e.Order.
func (e *Encoder) ByteOrderFlag() {
	e.Byte(e.Order.dbusFlag())
}
