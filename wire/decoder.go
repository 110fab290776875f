package wire

import (
	"fmt"
	"io"
	"math"
)

// A Decoder reads DBus wire-format bytes from an io.Reader, taking
// care of alignment padding as it goes.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim. Offsets are measured from the start of
// the stream the Decoder was created with, which the caller chooses
// to be either the start of a message header or the start of a
// message body.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input stream to read.
	In io.Reader

	// offset is the number of bytes consumed from In so far, modulo 8
	// (the largest alignment DBus requires). Alignment depends on the
	// cursor position within the whole message, not on local context,
	// so this has to be tracked explicitly rather than derived from
	// nesting depth.
	offset int

	// limit is set when this Decoder was created by [Decoder.Array] to
	// read one array's payload; it lets callers find out how many
	// payload bytes remain, so they know when to stop decoding
	// elements.
	limit *io.LimitedReader
}

// More reports whether this Decoder was created by [Decoder.Array] and
// still has unread array payload bytes. It returns false for a
// Decoder not scoped to an array payload.
func (d *Decoder) More() bool {
	return d.limit != nil && d.limit.N > 0
}

// NewDecoder returns a Decoder that reads from r using the given byte
// order.
func NewDecoder(order ByteOrder, r io.Reader) *Decoder {
	return &Decoder{Order: order, In: r}
}

// Offset reports the number of bytes consumed so far, modulo 8.
func (d *Decoder) Offset() int { return d.offset }

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes, relative to the start of the stream.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	if _, err := io.CopyN(io.Discard, d.In, int64(skip)); err != nil {
		return err
	}
	d.offset = (d.offset + skip) % 8
	return nil
}

// Read reads exactly n bytes, with no framing or padding.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	bs := make([]byte, n)
	if _, err := io.ReadFull(d.In, bs); err != nil {
		return nil, err
	}
	d.offset = (d.offset + n) % 8
	return bs, nil
}

// Byte reads a single byte with no alignment requirement.
func (d *Decoder) Byte() (byte, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Bool reads a boolean, wire-encoded as a 32-bit 0 or 1. Any other
// value is a decode error per spec.md 4.1.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("non-canonical boolean value %d on wire", v)
	}
}

// Int16 reads a signed 16-bit integer.
func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

// Uint16 reads an unsigned 16-bit integer.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(AlignInt16); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Int32 reads a signed 32-bit integer.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// Uint32 reads an unsigned 32-bit integer.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(AlignInt32); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Int64 reads a signed 64-bit integer.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// Uint64 reads an unsigned 64-bit integer.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(AlignInt64); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Float64 reads an IEEE-754 double.
func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bytes reads a length-prefixed byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if ln > MaxArrayBytes {
		return nil, fmt.Errorf("array of %d bytes exceeds maximum of %d", ln, MaxArrayBytes)
	}
	return d.Read(int(ln))
}

// String reads a length-prefixed, NUL-terminated string.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(ret[:len(ret)-1]), nil
}

// Signature reads a single-byte-length-prefixed, NUL-terminated
// signature string.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Byte()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	return string(ret[:len(ret)-1]), nil
}

// Array reads an array's length prefix and alignment padding, then
// calls readElements with an io.Reader limited to exactly the array's
// payload bytes. readElements must consume exactly that many bytes (it
// is responsible for consuming any trailing alignment padding inside
// the payload, e.g. between struct elements).
//
// firstElementAlign is the alignment of the array's element type.
func (d *Decoder) Array(firstElementAlign int, readElements func(payload *Decoder) error) error {
	ln, err := d.Uint32()
	if err != nil {
		return err
	}
	if ln > MaxArrayBytes {
		return fmt.Errorf("array of %d bytes exceeds maximum of %d", ln, MaxArrayBytes)
	}
	if err := d.Pad(firstElementAlign); err != nil {
		return err
	}

	lr := &io.LimitedReader{R: d.In, N: int64(ln)}
	sub := &Decoder{Order: d.Order, In: lr, offset: d.offset, limit: lr}
	if err := readElements(sub); err != nil {
		return err
	}
	if lr.N != 0 {
		return fmt.Errorf("array element reader left %d unread bytes", lr.N)
	}
	d.offset = (d.offset + int(ln)) % 8
	return nil
}

// Struct consumes the struct's leading alignment padding, then calls
// fields to read the struct's fields in order.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(AlignInt64); err != nil {
		return err
	}
	return fields()
}

// DictEntry consumes the dict entry's leading alignment padding, then
// calls kv to read the key and value in order.
func (d *Decoder) DictEntry(kv func() error) error {
	if err := d.Pad(AlignInt64); err != nil {
		return err
	}
	return kv()
}

// ByteOrderFlag reads a DBus byte order marker byte and sets d.Order
// to match it.
func (d *Decoder) ByteOrderFlag() error {
	b, err := d.Byte()
	if err != nil {
		return err
	}
	order, ok := FromFlag(b)
	if !ok {
		return fmt.Errorf("unknown byte order flag %q", b)
	}
	d.Order = order
	return nil
}
