// Package idhash centralises the deterministic identifiers used across
// the pipeline: content hashes of canonical JSON, alert identities and
// per-alert RNG sub-seeds.
package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"caller-alert-lab/internal/canon"
)

// ContentHash computes SHA256 over the canonical JSON form of v.
// Returns hex-encoded hash (64 characters). Semantically equal values
// hash identically regardless of field order or whitespace.
func ContentHash(v interface{}) (string, error) {
	data, err := canon.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes computes the hex SHA256 of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AlertID computes a deterministic alert identity.
// Formula: SHA256(chat_id|message_id), truncated to 32 hex chars.
func AlertID(chatID, messageID int64) string {
	data := fmt.Sprintf("%d|%d", chatID, messageID)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:16])
}

// SubSeed derives the per-alert RNG seed from the run seed, the
// execution model nonce and the alert id. Worker scheduling cannot
// influence the stream because every alert owns an independent RNG.
func SubSeed(seed, nonce int64, alertID string) int64 {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(nonce))
	h.Write(buf[:])
	h.Write([]byte(alertID))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
