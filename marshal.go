package dbus

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nilcore/dbus/wire"
)

// Marshal encodes values according to sig into a freshly allocated
// buffer, using the given byte order. len(values) must equal
// len(sig.Types()), and each value's type must match the
// corresponding signature entry.
func Marshal(order wire.ByteOrder, sig Signature, values []Value) ([]byte, error) {
	e := wire.NewEncoder(order, nil)
	if err := EncodeBody(e, sig, values); err != nil {
		return nil, err
	}
	return e.Out, nil
}

// Unmarshal decodes a value sequence matching sig from data, using
// the given byte order. It is an error for data to contain trailing
// bytes once the signature's values have been read.
func Unmarshal(order wire.ByteOrder, sig Signature, data []byte) ([]Value, error) {
	r := bytes.NewReader(data)
	d := wire.NewDecoder(order, r)
	values, err := DecodeBody(d, sig)
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%d trailing bytes after values of signature %q", r.Len(), sig)
	}
	return values, nil
}

// EncodeBody encodes a value sequence matching sig onto e. It is used
// for whole message bodies (see [Marshal]); variants are not encoded
// through it, since [encodeValue]'s KindVariant case writes the
// variant's own signature and single value directly.
func EncodeBody(e *wire.Encoder, sig Signature, values []Value) error {
	types := sig.Types()
	if len(types) != len(values) {
		return fmt.Errorf("signature %q describes %d values, got %d", sig, len(types), len(values))
	}
	for i, t := range types {
		if err := encodeValue(e, t, values[i]); err != nil {
			return fmt.Errorf("encoding value %d (%s): %w", i, t, err)
		}
	}
	return nil
}

// DecodeBody decodes a value sequence matching sig from d.
func DecodeBody(d *wire.Decoder, sig Signature) ([]Value, error) {
	types := sig.Types()
	if len(types) == 0 {
		return nil, nil
	}
	values := make([]Value, len(types))
	for i, t := range types {
		v, err := decodeValue(d, t)
		if err != nil {
			return nil, fmt.Errorf("decoding value %d (%s): %w", i, t, err)
		}
		values[i] = v
	}
	return values, nil
}

func encodeValue(e *wire.Encoder, t *Type, v Value) error {
	if v.Kind() != t.Kind {
		return fmt.Errorf("value kind %v does not match signature type %s", v.Kind(), t)
	}
	switch t.Kind {
	case KindByte:
		e.Byte(v.Byte())
	case KindBool:
		e.Bool(v.Bool())
	case KindInt16:
		e.Int16(v.Int16())
	case KindUint16:
		e.Uint16(v.Uint16())
	case KindInt32:
		e.Int32(v.Int32())
	case KindUint32:
		e.Uint32(v.Uint32())
	case KindInt64:
		e.Int64(v.Int64())
	case KindUint64:
		e.Uint64(v.Uint64())
	case KindFloat64:
		e.Float64(v.Float64())
	case KindUnixFD:
		e.Uint32(v.UnixFD())
	case KindString:
		if !utf8.ValidString(v.Str()) {
			return fmt.Errorf("string value is not valid UTF-8")
		}
		if strings.IndexByte(v.Str(), 0) >= 0 {
			return fmt.Errorf("string value contains a NUL byte")
		}
		e.String(v.Str())
	case KindPath:
		if err := v.Path().Validate(); err != nil {
			return err
		}
		e.String(string(v.Path()))
	case KindSignature:
		if _, err := ParseSignature(v.SignatureString()); err != nil {
			return err
		}
		e.Signature(v.SignatureString())
	case KindVariant:
		inner := v.Inner()
		innerType := inner.Type()
		sig := SignatureOf(innerType)
		if len(sig.String()) > 255 {
			return fmt.Errorf("variant inner signature %q exceeds 255 bytes", sig)
		}
		e.Signature(sig.String())
		return encodeValue(e, innerType, inner)
	case KindArray:
		if t.Elem.String() != v.Type().Elem.String() {
			return fmt.Errorf("array element type mismatch: signature wants %s, value has %s", t.Elem, v.Type().Elem)
		}
		var encErr error
		e.Array(t.Elem.align(), func() {
			for i, elem := range v.Elements() {
				if encErr != nil {
					return
				}
				if err := encodeValue(e, t.Elem, elem); err != nil {
					encErr = fmt.Errorf("array element %d: %w", i, err)
					return
				}
			}
		})
		return encErr
	case KindStruct:
		fields := v.Fields()
		if len(fields) != len(t.Fields) {
			return fmt.Errorf("struct %s has %d fields, value has %d", t, len(t.Fields), len(fields))
		}
		var encErr error
		e.Struct(func() {
			for i, ft := range t.Fields {
				if encErr != nil {
					return
				}
				if err := encodeValue(e, ft, fields[i]); err != nil {
					encErr = fmt.Errorf("struct field %d: %w", i, err)
					return
				}
			}
		})
		return encErr
	case KindDictEntry:
		var encErr error
		e.DictEntry(func() {
			if err := encodeValue(e, t.Key, v.DictKey()); err != nil {
				encErr = fmt.Errorf("dict entry key: %w", err)
				return
			}
			if err := encodeValue(e, t.Value, v.DictValue()); err != nil {
				encErr = fmt.Errorf("dict entry value: %w", err)
			}
		})
		return encErr
	default:
		return fmt.Errorf("cannot encode value of kind %v", t.Kind)
	}
	return nil
}

func decodeValue(d *wire.Decoder, t *Type) (Value, error) {
	switch t.Kind {
	case KindByte:
		b, err := d.Byte()
		return Byte(b), err
	case KindBool:
		b, err := d.Bool()
		return Bool(b), err
	case KindInt16:
		n, err := d.Int16()
		return Int16(n), err
	case KindUint16:
		n, err := d.Uint16()
		return Uint16(n), err
	case KindInt32:
		n, err := d.Int32()
		return Int32(n), err
	case KindUint32:
		n, err := d.Uint32()
		return Uint32(n), err
	case KindInt64:
		n, err := d.Int64()
		return Int64(n), err
	case KindUint64:
		n, err := d.Uint64()
		return Uint64(n), err
	case KindFloat64:
		f, err := d.Float64()
		return Float64(f), err
	case KindUnixFD:
		n, err := d.Uint32()
		return Fd(n), err
	case KindString:
		s, err := d.String()
		if err != nil {
			return Value{}, err
		}
		if !utf8.ValidString(s) {
			return Value{}, fmt.Errorf("decoded string is not valid UTF-8")
		}
		return Str(s), nil
	case KindPath:
		s, err := d.String()
		if err != nil {
			return Value{}, err
		}
		p := ObjectPath(s)
		if err := p.Validate(); err != nil {
			return Value{}, err
		}
		return Path(p), nil
	case KindSignature:
		s, err := d.Signature()
		if err != nil {
			return Value{}, err
		}
		sig, err := ParseSignature(s)
		if err != nil {
			return Value{}, err
		}
		return Sig(sig), nil
	case KindVariant:
		sigStr, err := d.Signature()
		if err != nil {
			return Value{}, err
		}
		sig, err := ParseSignature(sigStr)
		if err != nil {
			return Value{}, fmt.Errorf("variant signature: %w", err)
		}
		if !sig.IsSingle() {
			return Value{}, fmt.Errorf("variant signature %q must describe exactly one type", sigStr)
		}
		inner, err := decodeValue(d, sig.Single())
		if err != nil {
			return Value{}, fmt.Errorf("variant value: %w", err)
		}
		return VariantOf(inner), nil
	case KindArray:
		var elems []Value
		err := d.Array(t.Elem.align(), func(payload *wire.Decoder) error {
			for payload.More() {
				v, err := decodeValue(payload, t.Elem)
				if err != nil {
					return err
				}
				elems = append(elems, v)
			}
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return ArrayOf(t.Elem, elems), nil
	case KindStruct:
		fields := make([]Value, len(t.Fields))
		err := d.Struct(func() error {
			for i, ft := range t.Fields {
				v, err := decodeValue(d, ft)
				if err != nil {
					return fmt.Errorf("struct field %d: %w", i, err)
				}
				fields[i] = v
			}
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return StructOf(fields...), nil
	case KindDictEntry:
		var key, val Value
		err := d.DictEntry(func() error {
			k, err := decodeValue(d, t.Key)
			if err != nil {
				return fmt.Errorf("dict entry key: %w", err)
			}
			key = k
			v, err := decodeValue(d, t.Value)
			if err != nil {
				return fmt.Errorf("dict entry value: %w", err)
			}
			val = v
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return DictEntryOf(key, val), nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of kind %v", t.Kind)
	}
}
