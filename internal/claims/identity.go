package claims

import (
	"fmt"
	"strings"
	"time"

	apperrors "sessionguard/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Payload claim names issued by the backend.
const (
	ClaimRole           = "role"
	ClaimRoleURI        = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	ClaimUserID         = "userId"
	ClaimSubject        = "sub"
	ClaimName           = "name"
	ClaimOrganizationID = "organizationId"
	ClaimPhoto          = "photo"

	roleSeparator = ","
)

// Identity is the user-facing view of a token's payload. It is derived on
// every read and never stored.
type Identity struct {
	UserID         string   `json:"userId"`
	Name           string   `json:"name"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organizationId,omitempty"`
	Photo          string   `json:"photo,omitempty"`
	Issued         Issuance `json:"issued"`
}

// Issuance carries the registered claims describing when and by whom the
// token was minted. Zero values mean the claim was absent.
type Issuance struct {
	Issuer    string    `json:"issuer,omitempty"`
	ID        string    `json:"id,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	NotBefore time.Time `json:"notBefore"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HasPhoto reports whether the token references a profile image.
func (i *Identity) HasPhoto() bool {
	return i.Photo != ""
}

// Roles returns the payload's role claim as an ordered list. A single
// delimited string ("Admin,Viewer") and an array (["Admin","Viewer"]) yield the
// same result. Whitespace around entries is trimmed, empty entries and
// repeats are dropped.
func Roles(payload jwt.MapClaims) ([]string, error) {
	raw, ok := payload[ClaimRole]
	if !ok || raw == nil {
		raw, ok = payload[ClaimRoleURI]
	}
	if !ok || raw == nil {
		return nil, apperrors.NoRoleClaim()
	}

	var candidates []string
	switch v := raw.(type) {
	case string:
		candidates = strings.Split(v, roleSeparator)
	case []any:
		candidates = make([]string, 0, len(v))
		for _, item := range v {
			candidates = append(candidates, stringify(item))
		}
	case []string:
		candidates = v
	default:
		candidates = []string{stringify(v)}
	}

	roles := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		roles = append(roles, c)
	}

	if len(roles) == 0 {
		return nil, apperrors.NoRoleClaim()
	}

	return roles, nil
}

// IdentityFromToken decodes token and extracts the identity claims. A token
// without a role claim still yields an identity with no roles.
func IdentityFromToken(token string) (*Identity, error) {
	decoded, err := Decode(token)
	if err != nil {
		return nil, err
	}
	return decoded.Identity(), nil
}

// Identity extracts identity claims from the decoded payload.
func (t *Token) Identity() *Identity {
	p := t.Payload

	id := &Identity{
		UserID:         stringClaim(p, ClaimUserID),
		Name:           stringClaim(p, ClaimName),
		OrganizationID: stringClaim(p, ClaimOrganizationID),
		Photo:          stringClaim(p, ClaimPhoto),
	}
	if id.UserID == "" {
		id.UserID = stringClaim(p, ClaimSubject)
	}

	if roles, err := Roles(p); err == nil {
		id.Roles = roles
	}

	id.Issued.Issuer, _ = p.GetIssuer()
	id.Issued.ID = stringClaim(p, "jti")
	if v, err := p.GetIssuedAt(); err == nil && v != nil {
		id.Issued.IssuedAt = v.Time
	}
	if v, err := p.GetNotBefore(); err == nil && v != nil {
		id.Issued.NotBefore = v.Time
	}
	if v, err := p.GetExpirationTime(); err == nil && v != nil {
		id.Issued.ExpiresAt = v.Time
	}

	return id
}

func stringClaim(p jwt.MapClaims, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// stringify renders claim values the way a JSON consumer would print them:
// whole numbers without a fractional part.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
