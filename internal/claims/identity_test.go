package claims

import (
	"testing"

	apperrors "sessionguard/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoles_StringAndArrayAreEquivalent(t *testing.T) {
	cases := []struct {
		delimited string
		array     []any
	}{
		{"Admin", []any{"Admin"}},
		{"Admin,Viewer", []any{"Admin", "Viewer"}},
		{"Billing,Admin,Viewer", []any{"Billing", "Admin", "Viewer"}},
		{"Admin, Viewer", []any{"Admin", " Viewer"}},
	}

	for _, tc := range cases {
		t.Run(tc.delimited, func(t *testing.T) {
			fromString, err := Roles(jwt.MapClaims{"role": tc.delimited})
			require.NoError(t, err)

			fromArray, err := Roles(jwt.MapClaims{"role": tc.array})
			require.NoError(t, err)

			assert.Equal(t, fromArray, fromString)
		})
	}
}

func TestRoles_SurvivesTokenRoundTrip(t *testing.T) {
	fromString, err := Decode(mint(t, jwt.MapClaims{"role": "Admin,Viewer"}))
	require.NoError(t, err)
	fromArray, err := Decode(mint(t, jwt.MapClaims{"role": []string{"Admin", "Viewer"}}))
	require.NoError(t, err)

	a, err := Roles(fromString.Payload)
	require.NoError(t, err)
	b, err := Roles(fromArray.Payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"Admin", "Viewer"}, a)
	assert.Equal(t, a, b)
}

func TestRoles_Normalization(t *testing.T) {
	tests := []struct {
		name    string
		payload jwt.MapClaims
		want    []string
	}{
		{"keeps order", jwt.MapClaims{"role": "Viewer,Admin"}, []string{"Viewer", "Admin"}},
		{"drops empty entries", jwt.MapClaims{"role": ",Admin,,"}, []string{"Admin"}},
		{"drops repeats", jwt.MapClaims{"role": []any{"Admin", "Admin", "Viewer"}}, []string{"Admin", "Viewer"}},
		{"stringifies numbers", jwt.MapClaims{"role": []any{"Admin", float64(3)}}, []string{"Admin", "3"}},
		{"scalar number", jwt.MapClaims{"role": float64(1)}, []string{"1"}},
		{"typed string slice", jwt.MapClaims{"role": []string{"Admin"}}, []string{"Admin"}},
		{"role uri fallback", jwt.MapClaims{ClaimRoleURI: "Admin"}, []string{"Admin"}},
		{"short claim wins", jwt.MapClaims{"role": "Viewer", ClaimRoleURI: "Admin"}, []string{"Viewer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Roles(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoles_Missing(t *testing.T) {
	for name, payload := range map[string]jwt.MapClaims{
		"absent":      {"name": "Ada"},
		"null":        {"role": nil},
		"empty":       {"role": ""},
		"only commas": {"role": ",,"},
		"empty array": {"role": []any{}},
	} {
		t.Run(name, func(t *testing.T) {
			roles, err := Roles(payload)
			assert.Nil(t, roles)
			assert.ErrorIs(t, err, apperrors.ErrNoRoleClaim)
		})
	}
}
