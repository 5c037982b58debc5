package service

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Registry names of the built-in generators and hashers.
const (
	GeneratorBase58   = "base58"
	GeneratorUUID     = "uuid"
	GeneratorChecksum = "checksum"

	HasherSHA256  = "sha256"
	HasherSHA512  = "sha512"
	HasherBLAKE2b = "blake2b"
)

// digestHasher hashes plaintexts with a stdlib-compatible hash constructor
// and encodes the digest as lowercase hex.
type digestHasher struct {
	name    string
	newHash func() hash.Hash
}

// NewSHA256Hasher creates a hasher producing 64-character SHA-256 hex digests.
func NewSHA256Hasher() Hasher {
	return &digestHasher{name: HasherSHA256, newHash: sha256.New}
}

// NewSHA512Hasher creates a hasher producing 128-character SHA-512 hex digests.
func NewSHA512Hasher() Hasher {
	return &digestHasher{name: HasherSHA512, newHash: sha512.New}
}

// NewBLAKE2bHasher creates a hasher producing 64-character BLAKE2b-256 hex digests.
func NewBLAKE2bHasher() Hasher {
	return &digestHasher{name: HasherBLAKE2b, newHash: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	}}
}

func (h *digestHasher) Name() string { return h.name }

// Hash returns the hex digest of plaintext.
func (h *digestHasher) Hash(plaintext string) string {
	d := h.newHash()
	d.Write([]byte(plaintext))
	return hex.EncodeToString(d.Sum(nil))
}

// Verify recomputes the digest and compares it in constant time.
func (h *digestHasher) Verify(plaintext, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(plaintext)), []byte(digest)) == 1
}
