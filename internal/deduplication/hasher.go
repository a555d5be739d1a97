package deduplication

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strings"
)

const (
	HashSHA256 = "sha256"
	HashMD5    = "md5"
)

// Hasher derives delivery keys.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: strings.ToLower(algorithm)}
}

func (h *Hasher) newHash() hash.Hash {
	if h.algorithm == HashMD5 {
		return md5.New()
	}
	return sha256.New()
}

// ComputeHash hashes the parts in order. Each part is length-prefixed so
// ("ab","c") and ("a","bc") differ.
func (h *Hasher) ComputeHash(parts ...[]byte) string {
	sum := h.newHash()
	var size [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		sum.Write(size[:])
		sum.Write(part)
	}
	return hex.EncodeToString(sum.Sum(nil))
}
