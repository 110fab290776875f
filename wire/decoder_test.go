package wire

import (
	"bytes"
	"testing"
)

func TestDecoderRoundTrip(t *testing.T) {
	e := NewEncoder(LittleEndian, nil)
	e.Byte(7)
	e.Uint64(0x0102030405060708)
	e.String("hello")
	e.Array(AlignInt32, func() {
		e.Uint32(1)
		e.Uint32(2)
		e.Uint32(3)
	})

	d := NewDecoder(LittleEndian, bytes.NewReader(e.Out))
	b, err := d.Byte()
	if err != nil || b != 7 {
		t.Fatalf("Byte() = %d, %v, want 7, nil", b, err)
	}
	u, err := d.Uint64()
	if err != nil || u != 0x0102030405060708 {
		t.Fatalf("Uint64() = %x, %v", u, err)
	}
	s, err := d.String()
	if err != nil || s != "hello" {
		t.Fatalf("String() = %q, %v, want hello", s, err)
	}
	var got []uint32
	err = d.Array(AlignInt32, func(payload *Decoder) error {
		for {
			v, err := payload.Uint32()
			if err != nil {
				return err
			}
			got = append(got, v)
			if len(got) == 3 {
				return nil
			}
		}
	})
	if err != nil {
		t.Fatalf("Array() error: %v", err)
	}
	want := []uint32{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDecoderNonCanonicalBool(t *testing.T) {
	e := NewEncoder(LittleEndian, nil)
	e.Uint32(2)
	d := NewDecoder(LittleEndian, bytes.NewReader(e.Out))
	if _, err := d.Bool(); err == nil {
		t.Fatal("Bool() on wire value 2 should have failed")
	}
}

func TestDecoderTruncated(t *testing.T) {
	d := NewDecoder(LittleEndian, bytes.NewReader([]byte{1, 2}))
	if _, err := d.Uint64(); err == nil {
		t.Fatal("Uint64() on truncated input should have failed")
	}
}
