// Package claims reads identity and role claims out of a three-part bearer
// token.
//
// The decoder is a claims-reader, not a verifier: the signature segment is
// carried through as an opaque string and is never checked. Nothing decoded
// here may be treated as proof of identity. The backend verifies every token
// it receives; client-side decisions built on these claims only shape what the
// user is shown.
package claims

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "sessionguard/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenSeparator = "."
	tokenParts     = 3
	base64Quantum  = 4

	segmentHeader  = "header"
	segmentPayload = "payload"
)

const (
	msgTokenPartCountFmt   = "token must have %d parts, got %d"
	msgTokenEmptyPartFmt   = "token part %d is empty"
	msgSegmentBase64Fmt    = "%s is not valid base64url"
	msgSegmentUTF8Fmt      = "%s is not valid UTF-8"
	msgSegmentJSONFmt      = "%s is not a JSON object"
	errInvalidUTF8Sequence = "invalid UTF-8 byte sequence"
)

var base64URLReplacer = strings.NewReplacer("-", "+", "_", "/")

// Token is the decoded, unverified form of a bearer token.
type Token struct {
	Header    jwt.MapClaims
	Payload   jwt.MapClaims
	Signature string
}

// Decode splits token into header, payload and signature and parses the first
// two as JSON objects. The returned error is either ErrMalformedToken (wrong
// shape) or ErrDecode (base64, UTF-8 or JSON failure).
func Decode(token string) (*Token, error) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != tokenParts {
		return nil, apperrors.MalformedToken(fmt.Sprintf(msgTokenPartCountFmt, tokenParts, len(parts)))
	}
	for i, part := range parts {
		if part == "" {
			return nil, apperrors.MalformedToken(fmt.Sprintf(msgTokenEmptyPartFmt, i+1))
		}
	}

	header, err := decodeSegment(segmentHeader, parts[0])
	if err != nil {
		return nil, err
	}

	payload, err := decodeSegment(segmentPayload, parts[1])
	if err != nil {
		return nil, err
	}

	return &Token{Header: header, Payload: payload, Signature: parts[2]}, nil
}

func decodeSegment(name, segment string) (jwt.MapClaims, error) {
	std := base64URLReplacer.Replace(segment)
	if rem := len(std) % base64Quantum; rem != 0 {
		std += strings.Repeat("=", base64Quantum-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, apperrors.Decode(fmt.Sprintf(msgSegmentBase64Fmt, name), err)
	}

	if !utf8.Valid(raw) {
		return nil, apperrors.Decode(fmt.Sprintf(msgSegmentUTF8Fmt, name), fmt.Errorf(errInvalidUTF8Sequence))
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apperrors.Decode(fmt.Sprintf(msgSegmentJSONFmt, name), err)
	}
	// "null" unmarshals without error into a nil map
	if obj == nil {
		return nil, apperrors.Decode(fmt.Sprintf(msgSegmentJSONFmt, name), fmt.Errorf("null %s", name))
	}

	return jwt.MapClaims(obj), nil
}
