package dbus

import (
	"fmt"
	"math"
)

// A Value is a DBus value of any type: a tagged union with one arm
// per DBus type code, per the "tagged value union" design note in
// spec.md 9. Values are immutable once constructed; build them with
// the constructor functions in this file ([Byte], [Str], [ArrayOf],
// [StructOf], and so on) and read them back with the accessor methods.
//
// The zero Value has Kind() == KindInvalid and is not a valid DBus
// value.
type Value struct {
	kind Kind

	// num holds the bit pattern for all fixed-size basic kinds: the
	// byte, bool (0/1), the signed and unsigned integer kinds (their
	// two's-complement bits, zero-extended), the IEEE-754 bits of a float64, and
	// the numeric index of a UnixFD.
	num uint64

	// str holds the text of a string, object path, or signature
	// value.
	str string

	// elems holds the children of a container value: the elements of
	// an array, the fields of a struct (in order), the [key, value]
	// pair of a dict entry, or the single wrapped value of a variant.
	elems []Value

	// elemType records an array's element type. It is needed even
	// when elems is empty, since an empty array must still report a
	// complete element signature.
	elemType *Type
}

// Kind reports v's DBus type tag.
func (v Value) Kind() Kind { return v.kind }

// Type returns the complete DBus type describing v.
func (v Value) Type() *Type {
	switch v.kind {
	case KindArray:
		return &Type{Kind: KindArray, Elem: v.elemType}
	case KindStruct:
		fields := make([]*Type, len(v.elems))
		for i, f := range v.elems {
			fields[i] = f.Type()
		}
		return &Type{Kind: KindStruct, Fields: fields}
	case KindDictEntry:
		return &Type{Kind: KindDictEntry, Key: v.elems[0].Type(), Value: v.elems[1].Type()}
	default:
		return basic(v.kind)
	}
}

// Byte returns the value of a KindByte Value.
func (v Value) Byte() byte { return byte(v.num) }

// Bool returns the value of a KindBool Value.
func (v Value) Bool() bool { return v.num != 0 }

// Int16 returns the value of a KindInt16 Value.
func (v Value) Int16() int16 { return int16(v.num) }

// Uint16 returns the value of a KindUint16 Value.
func (v Value) Uint16() uint16 { return uint16(v.num) }

// Int32 returns the value of a KindInt32 Value.
func (v Value) Int32() int32 { return int32(v.num) }

// Uint32 returns the value of a KindUint32 Value.
func (v Value) Uint32() uint32 { return uint32(v.num) }

// Int64 returns the value of a KindInt64 Value.
func (v Value) Int64() int64 { return int64(v.num) }

// Uint64 returns the value of a KindUint64 Value.
func (v Value) Uint64() uint64 { return v.num }

// Float64 returns the value of a KindFloat64 Value.
func (v Value) Float64() float64 { return math.Float64frombits(v.num) }

// Str returns the value of a KindString Value.
func (v Value) Str() string { return v.str }

// Path returns the value of a KindPath Value.
func (v Value) Path() ObjectPath { return ObjectPath(v.str) }

// SignatureString returns the raw signature text of a KindSignature
// Value.
func (v Value) SignatureString() string { return v.str }

// UnixFD returns the out-of-band file descriptor table index of a
// KindUnixFD Value. The actual *os.File it refers to is carried
// alongside the message, not inline in the wire value; see [FDs].
func (v Value) UnixFD() uint32 { return uint32(v.num) }

// Elements returns the elements of a KindArray Value.
func (v Value) Elements() []Value { return v.elems }

// Fields returns the fields of a KindStruct Value, in order.
func (v Value) Fields() []Value { return v.elems }

// DictKey returns the key of a KindDictEntry Value.
func (v Value) DictKey() Value { return v.elems[0] }

// DictValue returns the value of a KindDictEntry Value.
func (v Value) DictValue() Value { return v.elems[1] }

// Inner returns the wrapped value of a KindVariant Value.
func (v Value) Inner() Value { return v.elems[0] }

// Byte constructs a KindByte Value.
func Byte(v uint8) Value { return Value{kind: KindByte, num: uint64(v)} }

// Bool constructs a KindBool Value.
func Bool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// Int16 constructs a KindInt16 Value.
func Int16(v int16) Value { return Value{kind: KindInt16, num: uint64(uint16(v))} }

// Uint16 constructs a KindUint16 Value.
func Uint16(v uint16) Value { return Value{kind: KindUint16, num: uint64(v)} }

// Int32 constructs a KindInt32 Value.
func Int32(v int32) Value { return Value{kind: KindInt32, num: uint64(uint32(v))} }

// Uint32 constructs a KindUint32 Value.
func Uint32(v uint32) Value { return Value{kind: KindUint32, num: uint64(v)} }

// Int64 constructs a KindInt64 Value.
func Int64(v int64) Value { return Value{kind: KindInt64, num: uint64(v)} }

// Uint64 constructs a KindUint64 Value.
func Uint64(v uint64) Value { return Value{kind: KindUint64, num: v} }

// Float64 constructs a KindFloat64 Value.
func Float64(v float64) Value { return Value{kind: KindFloat64, num: math.Float64bits(v)} }

// Str constructs a KindString Value. s must be valid UTF-8 and
// contain no NUL bytes; [Marshal] rejects values that violate this at
// encode time.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Path constructs a KindPath Value. Validity of p per the DBus object
// path grammar is checked by [ObjectPath.Validate] at marshal time,
// not at construction time.
func Path(p ObjectPath) Value { return Value{kind: KindPath, str: string(p)} }

// Sig constructs a KindSignature Value from a signature's wire text.
func Sig(s Signature) Value { return Value{kind: KindSignature, str: s.String()} }

// Fd constructs a KindUnixFD Value referring to the index-th
// descriptor in the message's out-of-band file descriptor table.
func Fd(index uint32) Value { return Value{kind: KindUnixFD, num: uint64(index)} }

// ArrayOf constructs a KindArray Value with the given element type
// and elements. elems may be empty, but elem must always be provided
// so the array's signature is known.
func ArrayOf(elem *Type, elems []Value) Value {
	return Value{kind: KindArray, elemType: elem, elems: elems}
}

// StructOf constructs a KindStruct Value from its fields, in order. A
// struct must have at least one field.
func StructOf(fields ...Value) Value {
	return Value{kind: KindStruct, elems: fields}
}

// DictEntryOf constructs a KindDictEntry Value. key must be a basic
// (non-container) value.
func DictEntryOf(key, value Value) Value {
	return Value{kind: KindDictEntry, elems: []Value{key, value}}
}

// VariantOf wraps inner in a KindVariant Value.
func VariantOf(inner Value) Value {
	return Value{kind: KindVariant, elems: []Value{inner}}
}

// Equal reports whether a and b are the same DBus value: same kind,
// same scalar content, and (for containers) recursively equal
// children in the same order. Equal is used by round-trip tests
// rather than reflect.DeepEqual, since Value's unexported fields
// differ in meaning across kinds (e.g. num holds unrelated bit
// patterns for KindInt32 and KindUnixFD).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindArray:
		if a.elemType.String() != b.elemType.String() || len(a.elems) != len(b.elems) {
			return false
		}
	case KindStruct, KindDictEntry, KindVariant:
		if len(a.elems) != len(b.elems) {
			return false
		}
	default:
		return a.num == b.num && a.str == b.str
	}
	for i := range a.elems {
		if !Equal(a.elems[i], b.elems[i]) {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	return fmt.Sprintf("Value{%s}", v.Type())
}
