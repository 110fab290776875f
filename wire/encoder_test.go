package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncoderAlignment(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *Encoder)
		want []byte
	}{
		{
			name: "byte then uint64 aligns to 8",
			run: func(e *Encoder) {
				e.Byte(1)
				e.Uint64(2)
			},
			want: []byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "byte then uint16 aligns to 2",
			run: func(e *Encoder) {
				e.Byte(1)
				e.Uint16(0x0203)
			},
			want: []byte{1, 0, 2, 3},
		},
		{
			name: "already aligned uint32 needs no padding",
			run: func(e *Encoder) {
				e.Uint32(1)
				e.Uint32(2)
			},
			want: []byte{0, 0, 0, 1, 0, 0, 0, 2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder(BigEndian, nil)
			tc.run(e)
			if diff := cmp.Diff(tc.want, e.Out); diff != "" {
				t.Errorf("wrong bytes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncoderString(t *testing.T) {
	e := NewEncoder(LittleEndian, nil)
	e.String("hi")
	want := []byte{2, 0, 0, 0, 'h', 'i', 0}
	if diff := cmp.Diff(want, e.Out); diff != "" {
		t.Errorf("wrong bytes (-want +got):\n%s", diff)
	}
}

func TestEncoderArrayLength(t *testing.T) {
	// Array length must count only the payload, excluding the leading
	// alignment padding inserted before the first element.
	e := NewEncoder(LittleEndian, nil)
	e.Byte(1) // force the array's length prefix to need padding
	e.Array(AlignInt64, func() {
		e.Uint64(0xaabbccdd)
		e.Uint64(0x11223344)
	})

	// byte, 3 bytes padding, 4-byte length (ending at offset 8, so no
	// padding is needed before the first element), then 16 bytes of
	// payload.
	if len(e.Out) != 1+3+4+16 {
		t.Fatalf("unexpected encoded length %d", len(e.Out))
	}
	gotLen := LittleEndian.Uint32(e.Out[4:8])
	if gotLen != 16 {
		t.Errorf("array length = %d, want 16 (payload bytes only)", gotLen)
	}
}

func TestEncoderStructAlignment(t *testing.T) {
	// (yt): a byte followed by a uint64 must place the uint64 at
	// offset 8 within the struct.
	e := NewEncoder(LittleEndian, nil)
	e.Struct(func() {
		e.Byte(0xff)
		e.Uint64(1)
	})
	if len(e.Out) != 16 {
		t.Fatalf("struct (yt) encoded to %d bytes, want 16", len(e.Out))
	}
	if got := LittleEndian.Uint64(e.Out[8:]); got != 1 {
		t.Errorf("uint64 field at wrong offset: got %d", got)
	}
}
