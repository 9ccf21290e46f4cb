package b64url

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 16, 32, 255} {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			t.Fatalf("rand.Read() error = %v", err)
		}

		encoded := Encode(b)
		if strings.ContainsAny(encoded, "=+/") {
			t.Errorf("Encode() produced padded or non-URL output for len %d: %q", n, encoded)
		}

		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode() error = %v for len %d", err, n)
		}
		if !bytes.Equal(b, decoded) {
			t.Errorf("round trip mismatch for len %d", n)
		}
	}
}

func TestDecode_PaddedInput(t *testing.T) {
	// "Hello" encodes to "SGVsbG8" unpadded, "SGVsbG8=" padded.
	for _, in := range []string{"SGVsbG8", "SGVsbG8=", "SGVsbG8=="} {
		decoded, err := Decode(in)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", in, err)
		}
		if string(decoded) != "Hello" {
			t.Errorf("Decode(%q) = %q, want %q", in, decoded, "Hello")
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{"not base64!!", "a=b=c", "%%%"} {
		if _, err := Decode(in); err == nil {
			t.Errorf("Decode(%q) expected error, got nil", in)
		}
	}
}

func TestEncode_Empty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil) = %q, want empty string", got)
	}
}
