package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for internal content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "nexus/snapshot/v1"
	DomainItem     = "nexus/item/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentToken is the sync token of a serialized Document: the lowercase
// hex SHA-256 of the bytes. Equal tokens mean nothing needs persisting.
func DocumentToken(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SnapshotToken fingerprints the canonical form of a snapshot. Two snapshots
// with the same items in the same order always share a token.
func SnapshotToken(s Snapshot) (string, error) {
	canonical, err := MarshalCanonical(s.ToIR())
	if err != nil {
		return "", fmt.Errorf("SnapshotToken: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// ContentKey fingerprints a single item. Used as the identity of items
// that carry no id member.
func ContentKey(obj IRObject) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ContentKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainItem, canonical), nil
}

// MustSnapshotToken is like SnapshotToken but panics on error.
// Use only in tests or when the snapshot came out of a Document.
func MustSnapshotToken(s Snapshot) string {
	token, err := SnapshotToken(s)
	if err != nil {
		panic(err)
	}
	return token
}
