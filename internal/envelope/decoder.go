// Package envelope decodes webhook bodies and verifies the signed envelopes
// some platforms wrap their notifications in.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	apperrors "storehook/pkg/errors"
)

// SignedPayloadField is the top-level member carrying a compact JWS.
const SignedPayloadField = "signedPayload"

// Segments holds the decoded, untrusted parts of a compact JWS.
type Segments struct {
	Header    map[string]interface{}
	Claims    map[string]interface{}
	Signature []byte
}

// KeyID returns the unverified "kid" header, or "".
func (s Segments) KeyID() string {
	kid, _ := s.Header["kid"].(string)
	return kid
}

// Algorithm returns the unverified "alg" header, or "".
func (s Segments) Algorithm() string {
	alg, _ := s.Header["alg"].(string)
	return alg
}

// DecodeResult is what the decoder could read from a body without any
// signature check.
type DecodeResult struct {
	Body map[string]interface{}
	// Token is the compact JWS found under signedPayload, if any.
	Token string
	// Segments is set whenever Token is.
	Segments *Segments
}

func (r DecodeResult) Signed() bool {
	return r.Token != ""
}

// Decode parses raw as a JSON object and, when it carries a signedPayload,
// splits and decodes the envelope. Nothing is trusted at this point.
func Decode(raw []byte) (DecodeResult, error) {
	body, err := DecodeJSON(raw)
	if err != nil {
		return DecodeResult{}, err
	}

	result := DecodeResult{Body: body}

	value, present := body[SignedPayloadField]
	if !present {
		return result, nil
	}
	token, ok := value.(string)
	if !ok || token == "" {
		return DecodeResult{}, apperrors.ErrMalformedEnvelope.WithDetail("message", "signedPayload must be a non-empty string")
	}

	segments, err := DecodeSegments(token)
	if err != nil {
		return DecodeResult{}, err
	}

	result.Token = token
	result.Segments = segments
	return result, nil
}

// DecodeJSON parses raw into a JSON object. Arrays, scalars and trailing
// garbage are MALFORMED_JSON.
func DecodeJSON(raw []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, apperrors.ErrMalformedJSON.WithDetail("message", "payload is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, apperrors.ErrMalformedJSON.WithCause(err)
	}
	if dec.More() {
		return nil, apperrors.ErrMalformedJSON.WithDetail("message", "trailing data after JSON object")
	}
	return body, nil
}

// DecodeSegments splits a compact JWS and decodes header and claims. It
// does not check the signature; callers must only trust the claims after
// a verifier has accepted the same token, or when the token is nested in
// an envelope that was already verified.
func DecodeSegments(token string) (*Segments, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apperrors.ErrMalformedEnvelope.WithDetail("segments", len(parts))
	}

	header, err := decodeObjectSegment(parts[0])
	if err != nil {
		return nil, err
	}
	claims, err := decodeObjectSegment(parts[1])
	if err != nil {
		return nil, err
	}
	signature, err := decodeBase64URL(parts[2])
	if err != nil {
		return nil, apperrors.ErrMalformedEnvelope.WithCause(err)
	}

	return &Segments{Header: header, Claims: claims, Signature: signature}, nil
}

func decodeObjectSegment(segment string) (map[string]interface{}, error) {
	data, err := decodeBase64URL(segment)
	if err != nil {
		return nil, apperrors.ErrMalformedEnvelope.WithCause(err)
	}
	return DecodeJSON(data)
}

// decodeBase64URL tolerates trailing padding.
func decodeBase64URL(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}
