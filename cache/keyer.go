package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Keyer generates deterministic cache keys from operation inputs.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from the operation name and its input.
	Key(operation string, input any) (string, error)
}

// DefaultKeyer hashes the canonical JSON form of the input with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "cache:<operation>:<hash>", where hash is the first 8 bytes
// of SHA-256 over the canonical JSON encoding of input. Maps are encoded
// with sorted keys, so equal inputs hash equally regardless of iteration
// order.
func (k *DefaultKeyer) Key(operation string, input any) (string, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, input); err != nil {
		return "", fmt.Errorf("cache: canonicalizing input: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return "cache:" + operation + ":" + hex.EncodeToString(sum[:8]), nil
}

// writeCanonical appends a deterministic JSON encoding of v to buf.
// Collections recurse; everything else goes through encoding/json.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
