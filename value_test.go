package dbus

import "testing"

func TestValueEqual(t *testing.T) {
	a := StructOf(Byte(1), ArrayOf(basic(KindString), []Value{Str("a"), Str("b")}))
	b := StructOf(Byte(1), ArrayOf(basic(KindString), []Value{Str("a"), Str("b")}))
	c := StructOf(Byte(2), ArrayOf(basic(KindString), []Value{Str("a"), Str("b")}))

	if !Equal(a, b) {
		t.Errorf("Equal(a, b) = false, want true")
	}
	if Equal(a, c) {
		t.Errorf("Equal(a, c) = true, want false")
	}
}

func TestValueEqualEmptyArrayType(t *testing.T) {
	a := ArrayOf(basic(KindUint32), nil)
	b := ArrayOf(basic(KindString), nil)
	if Equal(a, b) {
		t.Errorf("empty arrays of different element type compared equal")
	}
}

func TestValueType(t *testing.T) {
	v := VariantOf(DictEntryOf(Str("k"), Int32(7)))
	got := v.Type().String()
	if got != "v" {
		t.Errorf("variant Type().String() = %q, want v", got)
	}
	inner := v.Inner()
	if got := inner.Type().String(); got != "{si}" {
		t.Errorf("dict entry Type().String() = %q, want {si}", got)
	}
}
