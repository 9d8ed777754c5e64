// Package canonical produces deterministic JSON encodings of record values,
// used wherever two values must compare equal independent of key order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal produces a deterministic JSON encoding:
// - Object keys sorted lexicographically at every depth
// - No insignificant whitespace
// - HTML characters left unescaped
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(order(v)); err != nil {
		return nil, fmt.Errorf("failed to encode canonical value: %w", err)
	}

	// Remove trailing newline added by Encode
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

// String returns the canonical encoding as a string. Values that cannot be
// encoded fall back to their fmt representation so comparisons stay total.
func String(v any) string {
	b, err := Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Digest computes the sha256 of the canonical encoding.
// Returns "sha256:<hex>" format.
func Digest(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(hash[:]), nil
}

// Leading returns an ordered object encoding of m with the given keys first
// (when present) and the remaining keys sorted. Used for human-facing output
// where id and timestamps read best at the top.
func Leading(m map[string]any, leading ...string) json.Marshaler {
	result := make(orderedMap, 0, len(m))
	seen := make(map[string]bool, len(leading))
	for _, k := range leading {
		if v, ok := m[k]; ok && !seen[k] {
			result = append(result, keyValue{k, order(v)})
			seen[k] = true
		}
	}
	for _, k := range sortedKeys(m) {
		if !seen[k] {
			result = append(result, keyValue{k, order(m[k])})
		}
	}
	return result
}

// order rewrites maps into orderedMap values recursively
func order(v any) any {
	switch t := v.(type) {
	case map[string]any:
		result := make(orderedMap, 0, len(t))
		for _, k := range sortedKeys(t) {
			result = append(result, keyValue{k, order(t[k])})
		}
		return result
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = order(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type orderedMap []keyValue

type keyValue struct {
	Key   string
	Value interface{}
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := marshalNoEscape(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalNoEscape(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
