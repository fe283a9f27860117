package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration without colliding with old hashes.
const (
	DomainQuery      = "ccbind/query/v1"
	DomainContent    = "ccbind/content/v1"
	DomainDescriptor = "ccbind/descriptor/v1"
)

// hashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content-addressed hash of raw header bytes.
// This is the value the cache keys parse results on: a header whose bytes
// are unchanged hashes identically no matter how it was loaded.
func ContentHash(data []byte) string {
	return hashWithDomain(DomainContent, data)
}

// QueryFingerprint computes the content-addressed identity of a query
// from its kind and canonical key. Returns an error if the key cannot be
// canonically marshaled.
func QueryFingerprint(q Query) (string, error) {
	obj := map[string]any{
		"kind": string(q.Kind),
	}
	if q.Key != nil {
		obj["key"] = q.Key
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

// DescriptorFingerprint computes the content-addressed identity of a
// binding descriptor. Identical declarations translate to identical
// descriptors, so equal fingerprints here are the determinism check.
func DescriptorFingerprint(d BindingDescriptor) (string, error) {
	canonical, err := MarshalCanonical(d.CanonicalMap())
	if err != nil {
		return "", fmt.Errorf("DescriptorFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDescriptor, canonical), nil
}

// MustQueryFingerprint is like QueryFingerprint but panics on error.
// Query constructors use it: a key a constructor built is known to be
// canonically marshalable, so failure is a construction bug.
func MustQueryFingerprint(q Query) string {
	fp, err := QueryFingerprint(q)
	if err != nil {
		panic(err)
	}
	return fp
}

// MustDescriptorFingerprint is like DescriptorFingerprint but panics on
// error. Use only in tests or when inputs are known to be valid.
func MustDescriptorFingerprint(d BindingDescriptor) string {
	fp, err := DescriptorFingerprint(d)
	if err != nil {
		panic(err)
	}
	return fp
}
