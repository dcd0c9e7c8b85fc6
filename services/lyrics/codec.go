package lyrics

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrDecode marks malformed codec input. Callers treat it as "format
// unavailable" and fall back to the other format, never as fatal.
var ErrDecode = errors.New("lyrics decode failed")

// containerMagic is the 4-byte header of the word-timed lyrics container.
var containerMagic = []byte("krc1")

// containerKey is the fixed 16-byte XOR key applied to the container body
// before zlib compression. Versionless; recovered from sample payloads.
var containerKey = []byte{
	0x40, 0x47, 0x61, 0x77, 0x5e, 0x32, 0x74, 0x47,
	0x51, 0x36, 0x31, 0x2d, 0xce, 0xd2, 0x6e, 0x69,
}

// DecodeTimedPlain decodes the simple base64-wrapped timed lyric text.
func DecodeTimedPlain(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}
	return strings.TrimPrefix(string(raw), "\uFEFF"), nil
}

// DecodeContainer reverses the provider's container scheme and returns the
// word-timed lyric text: base64 wrapper, 4-byte magic, XOR obfuscation of
// the body, zlib compression underneath.
func DecodeContainer(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	if len(raw) < len(containerMagic)+1 || !bytes.HasPrefix(raw, containerMagic) {
		return "", fmt.Errorf("%w: missing container magic", ErrDecode)
	}

	body := make([]byte, len(raw)-len(containerMagic))
	copy(body, raw[len(containerMagic):])
	for i := range body {
		body[i] ^= containerKey[i%len(containerKey)]
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: corrupt container body: %v", ErrDecode, err)
	}
	defer zr.Close()

	text, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("%w: corrupt container body: %v", ErrDecode, err)
	}
	if !utf8.Valid(text) {
		return "", fmt.Errorf("%w: container text is not valid UTF-8", ErrDecode)
	}
	return strings.TrimPrefix(string(text), "\uFEFF"), nil
}
