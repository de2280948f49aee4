// Package engine implements the pure state machine at the center of the
// orchestrator: Transit maps (state, intent, now) to (state', effects).
package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// StableJSON serializes v with lexicographically sorted object keys,
// arrays in input order, and null for nil values. Two inputs that are
// equivalent up to key order produce byte-identical output, which makes
// it safe to hash for content-addressed ids.
func StableJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for stable encoding: %w", err)
	}
	// Round-trip through a generic value: encoding/json sorts map keys
	// on output, and UseNumber keeps numeric literals verbatim.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode for stable encoding: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("stable encode: %w", err)
	}
	return out, nil
}

// DeterministicID builds "kind-<hex12>" where hex12 is the first 12 hex
// characters of the SHA-256 of the stable encoding of v. Used for
// clarification, plan, discussion and approval ids.
func DeterministicID(kind string, v any) string {
	data, err := StableJSON(v)
	if err != nil {
		// Marshal of the value types used here cannot fail; fall back to
		// hashing the error text so an id is still produced.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return kind + "-" + hex.EncodeToString(sum[:])[:12]
}
