package dbus

import "testing"

func TestParseSignatureAccept(t *testing.T) {
	tests := []string{
		"",
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h", "v",
		"ay", "as", "a(yv)",
		"(yyy)",
		"a{sv}",
		"a{s(ii)}",
		"(a{sv}as)",
		"aao",
	}
	for _, sig := range tests {
		s, err := ParseSignature(sig)
		if err != nil {
			t.Errorf("ParseSignature(%q) failed: %v", sig, err)
			continue
		}
		if got := s.String(); got != sig {
			t.Errorf("ParseSignature(%q).String() = %q, want %q", sig, got, sig)
		}
	}
}

func TestParseSignatureReject(t *testing.T) {
	tests := []string{
		"(",
		")",
		"a",
		"{sv}",    // dict entry outside array
		"()",      // empty struct
		"a{v}",    // dict entry with wrong field count (missing value type)
		"a{vs}",   // variant is not a valid dict entry key
		"z",       // unknown type code
		"(yy",     // unterminated struct
	}
	for _, sig := range tests {
		if _, err := ParseSignature(sig); err == nil {
			t.Errorf("ParseSignature(%q) should have failed", sig)
		}
	}
}

func TestParseSignatureMultipleTypes(t *testing.T) {
	s, err := ParseSignature("sii")
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if len(s.Types()) != 3 {
		t.Fatalf("got %d types, want 3", len(s.Types()))
	}
	if s.IsSingle() {
		t.Fatalf("IsSingle() = true for 3-type signature")
	}
}

func TestParseSignatureTooLong(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'y'
	}
	if _, err := ParseSignature(string(long)); err == nil {
		t.Fatalf("ParseSignature of 256-byte signature should have failed")
	}
}
