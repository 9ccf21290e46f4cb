// Package b64url implements the wire encoding for binary WebAuthn fields.
// Values are emitted as unpadded Base64URL strings; decoding accepts both
// padded and unpadded input, since clients are inconsistent about '=' padding.
package b64url

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Encode returns the unpadded Base64URL representation of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode decodes a Base64URL string, tolerating trailing '=' padding.
func Decode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64url: %w", err)
	}
	return b, nil
}
