package dispatch

import (
	"testing"

	"github.com/mr-tron/base58"
)

func TestNormalizeSignatureString(t *testing.T) {
	valid := base58.Encode(make([]byte, 64))

	got, ok := NormalizeSignature(valid)
	if !ok {
		t.Fatal("valid base58 signature rejected")
	}
	if got != valid {
		t.Errorf("string form must pass through unchanged, got %s", got)
	}
}

func TestNormalizeSignatureBytes(t *testing.T) {
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	got, ok := NormalizeSignature(raw)
	if !ok {
		t.Fatal("raw byte signature rejected")
	}
	if got != base58.Encode(raw) {
		t.Errorf("byte form must encode to base58, got %s", got)
	}
}

func TestNormalizeSignatureBufferWrapper(t *testing.T) {
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(255 - i)
	}

	data := make([]interface{}, len(raw))
	for i, b := range raw {
		data[i] = float64(b)
	}
	wrapper := map[string]interface{}{"type": "Buffer", "data": data}

	got, ok := NormalizeSignature(wrapper)
	if !ok {
		t.Fatal("buffer wrapper signature rejected")
	}
	if got != base58.Encode(raw) {
		t.Errorf("wrapper form must decode then encode, got %s", got)
	}
}

func TestNormalizeSignatureAgreement(t *testing.T) {
	// All three encodings of the same signature normalise identically.
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(i * 3)
	}
	encoded := base58.Encode(raw)

	data := make([]interface{}, len(raw))
	for i, b := range raw {
		data[i] = float64(b)
	}

	fromString, ok1 := NormalizeSignature(encoded)
	fromBytes, ok2 := NormalizeSignature(raw)
	fromWrapper, ok3 := NormalizeSignature(map[string]interface{}{"data": data})

	if !ok1 || !ok2 || !ok3 {
		t.Fatalf("encodings rejected: %v %v %v", ok1, ok2, ok3)
	}
	if fromString != fromBytes || fromBytes != fromWrapper {
		t.Errorf("encodings disagree: %s / %s / %s", fromString, fromBytes, fromWrapper)
	}
}

func TestNormalizeSignatureRejectsGarbage(t *testing.T) {
	cases := []interface{}{
		"",
		"tooshort",
		"0OIl-not-base58-0OIl-not-base58-0OIl-not-base58-0OIl-not-base58-",
		12345,
		nil,
		map[string]interface{}{"data": "not-an-array"},
		map[string]interface{}{"data": []interface{}{float64(999)}},
	}
	for _, input := range cases {
		if got, ok := NormalizeSignature(input); ok {
			t.Errorf("expected rejection of %v, got %s", input, got)
		}
	}
}
