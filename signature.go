package dbus

import (
	"fmt"
	"strings"
)

// Kind identifies a DBus wire type. Unlike the teacher library this
// package is grounded on, Kind is not derived from Go's reflect
// package: it is an explicit tag, one arm per DBus type code, per the
// "tagged value union" design note in spec.md 9.
type Kind byte

const (
	KindInvalid Kind = iota
	KindByte         // y
	KindBool         // b
	KindInt16        // n
	KindUint16       // q
	KindInt32        // i
	KindUint32       // u
	KindInt64        // x
	KindUint64       // t
	KindFloat64      // d
	KindString       // s
	KindPath         // o
	KindSignature    // g
	KindUnixFD       // h
	KindVariant      // v
	KindArray        // a
	KindStruct       // (...)
	KindDictEntry    // {...}
)

// code is the DBus signature character for basic (non-container)
// kinds. Containers are rendered specially by Type.String.
var code = map[Kind]byte{
	KindByte:      'y',
	KindBool:      'b',
	KindInt16:     'n',
	KindUint16:    'q',
	KindInt32:     'i',
	KindUint32:    'u',
	KindInt64:     'x',
	KindUint64:    't',
	KindFloat64:   'd',
	KindString:    's',
	KindPath:      'o',
	KindSignature: 'g',
	KindUnixFD:    'h',
	KindVariant:   'v',
}

var codeToKind = func() map[byte]Kind {
	m := make(map[byte]Kind, len(code))
	for k, c := range code {
		m[c] = k
	}
	return m
}()

// align returns the wire alignment, in bytes, required before a value
// of this kind, per spec.md 4.1.
func (k Kind) align() int {
	switch k {
	case KindByte, KindSignature, KindVariant:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindBool, KindUnixFD, KindArray, KindString, KindPath:
		return 4
	case KindInt64, KindUint64, KindFloat64, KindStruct, KindDictEntry:
		return 8
	default:
		return 1
	}
}

// String returns a human-readable name for k, for use in error
// messages.
func (k Kind) String() string {
	if c, ok := code[k]; ok {
		return string(c)
	}
	switch k {
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindDictEntry:
		return "dict entry"
	default:
		return "invalid"
	}
}

// A Type is one complete type in the DBus type grammar: a base type,
// or a recursively-described container.
//
// Types are built once by [ParseSignature] and then reused to drive
// both encoding and decoding, rather than re-scanning the signature
// string at every nesting level (spec.md 9, "Signature as parsed
// tree").
type Type struct {
	Kind Kind

	// Elem is the element type of an array (Kind == KindArray).
	Elem *Type
	// Fields are the member types of a struct, in order (Kind ==
	// KindStruct).
	Fields []*Type
	// Key and Value are a dict entry's key and value types (Kind ==
	// KindDictEntry). Key is always a basic type.
	Key, Value *Type
}

func basic(k Kind) *Type { return &Type{Kind: k} }

// align returns the wire alignment, in bytes, required before a value
// of this type.
func (t *Type) align() int { return t.Kind.align() }

// String returns the DBus signature string for t.
func (t *Type) String() string {
	if t == nil {
		return ""
	}
	if c, ok := code[t.Kind]; ok {
		return string(c)
	}
	switch t.Kind {
	case KindArray:
		return "a" + t.Elem.String()
	case KindStruct:
		var b strings.Builder
		b.WriteByte('(')
		for _, f := range t.Fields {
			b.WriteString(f.String())
		}
		b.WriteByte(')')
		return b.String()
	case KindDictEntry:
		return "{" + t.Key.String() + t.Value.String() + "}"
	default:
		return "?"
	}
}

// A Signature is a parsed DBus type signature: a sequence of zero or
// more complete types, as used for message bodies and multi-valued
// method signatures.
type Signature struct {
	types []*Type
}

// ParseSignature parses a DBus type signature string into a sequence
// of complete types.
//
// ParseSignature enforces spec.md 4.1's validation rules: the string
// must parse to a finite sequence of complete types, dict entries may
// only occur directly inside an array, and the signature must be no
// more than 255 bytes (the wire limit for a 'g'-typed value; longer
// signatures cannot themselves be transmitted as a 'g' value, such as
// inside a [Value] of kind [KindVariant]).
func ParseSignature(sig string) (Signature, error) {
	if len(sig) > 255 {
		return Signature{}, fmt.Errorf("signature %q exceeds maximum length of 255 bytes", sig)
	}
	var types []*Type
	rest := sig
	for rest != "" {
		t, tail, err := parseOne(rest, false)
		if err != nil {
			return Signature{}, fmt.Errorf("invalid type signature %q: %w", sig, err)
		}
		types = append(types, t)
		rest = tail
	}
	return Signature{types}, nil
}

// MustParseSignature is like [ParseSignature] but panics on error. It
// is intended for signature literals fixed at compile time, such as
// the well-known signatures of DBus core interfaces.
func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return s
}

func parseOne(s string, inArray bool) (*Type, string, error) {
	if s == "" {
		return nil, "", fmt.Errorf("unexpected end of signature")
	}
	if k, ok := codeToKind[s[0]]; ok {
		return basic(k), s[1:], nil
	}
	switch s[0] {
	case 'a':
		if len(s) < 2 {
			return nil, "", fmt.Errorf("array type code with no element type")
		}
		elem, rest, err := parseOne(s[1:], true)
		if err != nil {
			return nil, "", err
		}
		return &Type{Kind: KindArray, Elem: elem}, rest, nil
	case '(':
		rest := s[1:]
		var fields []*Type
		for rest != "" && rest[0] != ')' {
			f, tail, err := parseOne(rest, false)
			if err != nil {
				return nil, "", err
			}
			fields = append(fields, f)
			rest = tail
		}
		if rest == "" {
			return nil, "", fmt.Errorf("missing closing ) in struct definition")
		}
		if len(fields) == 0 {
			return nil, "", fmt.Errorf("empty struct definition")
		}
		return &Type{Kind: KindStruct, Fields: fields}, rest[1:], nil
	case '{':
		if !inArray {
			return nil, "", fmt.Errorf("dict entry type found outside array")
		}
		key, rest, err := parseOne(s[1:], false)
		if err != nil {
			return nil, "", err
		}
		if !isBasic(key.Kind) {
			return nil, "", fmt.Errorf("invalid dict entry key type %s, must be a basic type", key)
		}
		val, rest2, err := parseOne(rest, false)
		if err != nil {
			return nil, "", err
		}
		if rest2 == "" || rest2[0] != '}' {
			return nil, "", fmt.Errorf("missing closing } in dict entry definition")
		}
		return &Type{Kind: KindDictEntry, Key: key, Value: val}, rest2[1:], nil
	case ')', '}':
		return nil, "", fmt.Errorf("unexpected closing %q with no matching opener", s[0])
	default:
		return nil, "", fmt.Errorf("unknown type specifier %q", s[0])
	}
}

func isBasic(k Kind) bool {
	switch k {
	case KindArray, KindStruct, KindDictEntry, KindVariant, KindInvalid:
		return false
	default:
		return true
	}
}

// String returns the signature's wire string representation.
func (s Signature) String() string {
	var b strings.Builder
	for _, t := range s.types {
		b.WriteString(t.String())
	}
	return b.String()
}

// IsZero reports whether s is the empty signature, describing a void
// value (no body).
func (s Signature) IsZero() bool { return len(s.types) == 0 }

// IsSingle reports whether s describes exactly one complete type, as
// opposed to a multi-value message body signature.
func (s Signature) IsSingle() bool { return len(s.types) == 1 }

// Types returns the signature's component types in order.
func (s Signature) Types() []*Type { return s.types }

// Single returns the signature's sole type. It panics if
// !s.IsSingle().
func (s Signature) Single() *Type {
	if !s.IsSingle() {
		panic("Single called on non-single Signature")
	}
	return s.types[0]
}

// Append returns a new Signature with t appended.
func (s Signature) Append(t *Type) Signature {
	types := make([]*Type, len(s.types)+1)
	copy(types, s.types)
	types[len(s.types)] = t
	return Signature{types}
}

// SignatureOf returns the single-type Signature describing a value of
// the given Type.
func SignatureOf(t *Type) Signature {
	return Signature{[]*Type{t}}
}
