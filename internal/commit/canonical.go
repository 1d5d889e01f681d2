package commit

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes a record deterministically: fields sorted by name,
// no whitespace, and any top-level "hash" field stripped so a record's own
// hash can never end up inside the material being hashed. Two logically equal
// records always canonicalize to identical bytes, whatever field order they
// arrived in.
//
// Proof verification depends on this byte-for-byte; nothing nondeterministic
// may ever be added here.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if m, ok := generic.(map[string]any); ok {
		delete(m, "hash")
	}
	// encoding/json writes map keys in sorted order and json.Number values
	// verbatim, which keeps the output stable.
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HmacSha256 returns HMAC-SHA-256 of message under key. Used only for seed
// derivation, never for commitments.
func HmacSha256(message, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
