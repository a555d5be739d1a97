package keyset

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// JSONWebKey is the subset of RFC 7517 members needed to rebuild RSA and
// EC verification keys.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type document struct {
	Keys []json.RawMessage `json:"keys"`
}

// KeySet is an immutable snapshot of one platform's published keys.
type KeySet struct {
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	skipped   []string
}

func NewKeySet(keys map[string]crypto.PublicKey, fetchedAt time.Time) *KeySet {
	copied := make(map[string]crypto.PublicKey, len(keys))
	for kid, key := range keys {
		copied[kid] = key
	}
	return &KeySet{keys: copied, fetchedAt: fetchedAt}
}

func (s *KeySet) Lookup(kid string) (crypto.PublicKey, bool) {
	if s == nil {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *KeySet) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// KeyIDs returns the key ids in the set, unordered.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	return ids
}

// Skipped lists "kid: reason" for entries that could not be used.
func (s *KeySet) Skipped() []string {
	if s == nil {
		return nil
	}
	return s.skipped
}

var errNoUsableKeys = errors.New("key set contains no usable keys")

// ParseKeySet decodes a JWKS document. Entries without a kid, with an
// unsupported kty or with bad parameters are skipped; a document with no
// usable entry is an error.
func ParseKeySet(data []byte, fetchedAt time.Time) (*KeySet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New("decode key set: missing keys array")
	}

	set := &KeySet{
		keys:      make(map[string]crypto.PublicKey, len(doc.Keys)),
		fetchedAt: fetchedAt,
	}

	for i, raw := range doc.Keys {
		var jwk JSONWebKey
		if err := json.Unmarshal(raw, &jwk); err != nil {
			set.skipped = append(set.skipped, fmt.Sprintf("#%d: %v", i, err))
			continue
		}
		if jwk.Kid == "" {
			set.skipped = append(set.skipped, fmt.Sprintf("#%d: missing kid", i))
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			set.skipped = append(set.skipped, fmt.Sprintf("%s: use %q", jwk.Kid, jwk.Use))
			continue
		}
		key, err := jwk.PublicKey()
		if err != nil {
			set.skipped = append(set.skipped, fmt.Sprintf("%s: %v", jwk.Kid, err))
			continue
		}
		set.keys[jwk.Kid] = key
	}

	if len(set.keys) == 0 {
		return nil, errNoUsableKeys
	}
	return set, nil
}

// PublicKey rebuilds the verification key described by k.
func (k JSONWebKey) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaPublicKey()
	case "EC":
		return k.ecPublicKey()
	default:
		return nil, fmt.Errorf("unsupported kty %q", k.Kty)
	}
}

func (k JSONWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.N == "" || k.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := decodeSegment(k.N)
	if err != nil {
		return nil, fmt.Errorf("rsa modulus: %w", err)
	}
	eBytes, err := decodeSegment(k.E)
	if err != nil {
		return nil, fmt.Errorf("rsa exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	if n.BitLen() < 1024 {
		return nil, fmt.Errorf("rsa modulus too short (%d bits)", n.BitLen())
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > int64(^uint32(0)>>1) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

type curveSpec struct {
	curve elliptic.Curve
	ecdh  ecdh.Curve
	size  int
}

var curves = map[string]curveSpec{
	"P-256": {curve: elliptic.P256(), ecdh: ecdh.P256(), size: 32},
	"P-384": {curve: elliptic.P384(), ecdh: ecdh.P384(), size: 48},
	"P-521": {curve: elliptic.P521(), ecdh: ecdh.P521(), size: 66},
}

func (k JSONWebKey) ecPublicKey() (*ecdsa.PublicKey, error) {
	spec, ok := curves[k.Crv]
	if !ok {
		return nil, fmt.Errorf("unsupported curve %q", k.Crv)
	}
	xBytes, err := decodeSegment(k.X)
	if err != nil {
		return nil, fmt.Errorf("ec x: %w", err)
	}
	yBytes, err := decodeSegment(k.Y)
	if err != nil {
		return nil, fmt.Errorf("ec y: %w", err)
	}
	if len(xBytes) != spec.size || len(yBytes) != spec.size {
		return nil, fmt.Errorf("ec coordinates must be %d bytes", spec.size)
	}

	// ecdh rejects points that are not on the curve.
	point := make([]byte, 0, 1+2*spec.size)
	point = append(point, 0x04)
	point = append(point, xBytes...)
	point = append(point, yBytes...)
	if _, err := spec.ecdh.NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("ec point: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: spec.curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// decodeSegment accepts base64url with or without padding.
func decodeSegment(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty value")
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
