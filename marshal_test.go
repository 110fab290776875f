package dbus

import (
	"testing"

	"github.com/nilcore/dbus/wire"
)

func roundTrip(t *testing.T, sig string, values []Value) {
	t.Helper()
	s := MustParseSignature(sig)
	data, err := Marshal(wire.LittleEndian, s, values)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(wire.LittleEndian, s, data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if !Equal(got[i], values[i]) {
			t.Errorf("value %d: got %v, want %v", i, got[i], values[i])
		}
	}
}

func TestMarshalBasicTypes(t *testing.T) {
	roundTrip(t, "ybnqiuxtd", []Value{
		Byte(1),
		Bool(true),
		Int16(-2),
		Uint16(3),
		Int32(-4),
		Uint32(5),
		Int64(-6),
		Uint64(7),
		Float64(8.5),
	})
}

func TestMarshalStringTypes(t *testing.T) {
	roundTrip(t, "sog", []Value{
		Str("hello, world"),
		Path("/org/freedesktop/DBus"),
		Sig(MustParseSignature("a{sv}")),
	})
}

func TestMarshalArray(t *testing.T) {
	roundTrip(t, "au", []Value{
		ArrayOf(basic(KindUint32), []Value{Uint32(1), Uint32(2), Uint32(3)}),
	})
}

func TestMarshalEmptyArray(t *testing.T) {
	roundTrip(t, "as", []Value{
		ArrayOf(basic(KindString), nil),
	})
}

func TestMarshalStruct(t *testing.T) {
	roundTrip(t, "(yx)", []Value{
		StructOf(Byte(0xff), Int64(-1)),
	})
}

func TestMarshalDict(t *testing.T) {
	dictType := &Type{Kind: KindDictEntry, Key: basic(KindString), Value: basic(KindVariant)}
	roundTrip(t, "a{sv}", []Value{
		ArrayOf(dictType, []Value{
			DictEntryOf(Str("Name"), VariantOf(Str("bob"))),
			DictEntryOf(Str("Age"), VariantOf(Uint32(42))),
		}),
	})
}

func TestMarshalVariant(t *testing.T) {
	roundTrip(t, "v", []Value{
		VariantOf(StructOf(Byte(1), Str("x"))),
	})
}

func TestMarshalUnixFD(t *testing.T) {
	roundTrip(t, "h", []Value{Fd(3)})
}

func TestMarshalRejectsInvalidPath(t *testing.T) {
	_, err := Marshal(wire.LittleEndian, MustParseSignature("o"), []Value{Path("not-absolute")})
	if err == nil {
		t.Fatal("Marshal with invalid object path should have failed")
	}
}

func TestMarshalRejectsKindMismatch(t *testing.T) {
	_, err := Marshal(wire.LittleEndian, MustParseSignature("i"), []Value{Str("oops")})
	if err == nil {
		t.Fatal("Marshal with mismatched Value kind should have failed")
	}
}

func TestMarshalRejectsWrongValueCount(t *testing.T) {
	_, err := Marshal(wire.LittleEndian, MustParseSignature("ii"), []Value{Int32(1)})
	if err == nil {
		t.Fatal("Marshal with too few values should have failed")
	}
}

func TestUnmarshalNonCanonicalBool(t *testing.T) {
	e := wire.NewEncoder(wire.LittleEndian, nil)
	e.Uint32(2)
	if _, err := Unmarshal(wire.LittleEndian, MustParseSignature("b"), e.Out); err == nil {
		t.Fatal("Unmarshal of non-canonical bool should have failed")
	}
}
