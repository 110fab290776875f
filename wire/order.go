// Package wire provides the byte-level primitives used to read and
// write the DBus wire format: alignment, length-prefixed strings and
// arrays, and byte order handling.
//
// Package wire knows nothing about DBus's type system or message
// framing; it only knows how to place bytes at the correct offsets.
// The signature-driven encoding and decoding of values lives in the
// parent package, which drives an [Encoder]/[Decoder] pair using these
// primitives.
package wire

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// A ByteOrder is a DBus-aware byte order: in addition to the standard
// encoding/binary operations, it knows its own wire marker byte ('l'
// or 'B').
type ByteOrder interface {
	byteOrder
	dbusFlag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) dbusFlag() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

var (
	BigEndian    ByteOrder = wrapStd{binary.BigEndian}
	LittleEndian ByteOrder = wrapStd{binary.LittleEndian}
	NativeEndian ByteOrder = wrapStd{binary.NativeEndian}
)

// FromFlag returns the ByteOrder corresponding to a DBus wire marker
// byte ('l' or 'B').
func FromFlag(b byte) (ByteOrder, bool) {
	switch b {
	case 'l':
		return LittleEndian, true
	case 'B':
		return BigEndian, true
	default:
		return nil, false
	}
}
