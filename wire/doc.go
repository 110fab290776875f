package wire

// Alignment requirements for the DBus basic types, indexed by the
// type's wire signature code. Containers inherit these through
// [Encoder.Struct] (8) and [Encoder.Array] (4, plus the element's own
// alignment for the first element).
const (
	AlignByte     = 1 // y, g, v
	AlignInt16    = 2 // n, q
	AlignInt32    = 4 // b, i, u, h, arrays, strings, object paths
	AlignInt64    = 8 // x, t, d, struct, dict entry
	MaxArrayBytes = 64 << 20  // 64 MiB, spec.md 4.1
	MaxFrameBytes = 128 << 20 // 128 MiB, spec.md 9 open question
)
