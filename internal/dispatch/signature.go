// internal/dispatch/signature.go
package dispatch

import (
	"github.com/mr-tron/base58"
)

const (
	minSignatureLen = 58
	maxSignatureLen = 88
)

// NormalizeSignature folds the three encodings a signature arrives in (raw
// bytes, a typed buffer wrapper, or a base58 string) into one canonical
// base58 form. Everything downstream of the dispatcher sees only this form.
// The boolean is false for values that cannot be a transaction signature.
func NormalizeSignature(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return validateBase58(v)
	case []byte:
		return validateBase58(base58.Encode(v))
	case map[string]interface{}:
		// JSON-decoded buffer wrapper: {"type":"Buffer","data":[...]}.
		raw, ok := v["data"].([]interface{})
		if !ok {
			return "", false
		}
		buf := make([]byte, 0, len(raw))
		for _, item := range raw {
			num, ok := item.(float64)
			if !ok || num < 0 || num > 255 {
				return "", false
			}
			buf = append(buf, byte(num))
		}
		return validateBase58(base58.Encode(buf))
	default:
		return "", false
	}
}

func validateBase58(candidate string) (string, bool) {
	if len(candidate) < minSignatureLen || len(candidate) > maxSignatureLen {
		return "", false
	}
	if _, err := base58.Decode(candidate); err != nil {
		return "", false
	}
	return candidate, true
}
