package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJWTAuthenticatorRoundTrip(t *testing.T) {
	auth := NewJWTAuthenticator("test-secret")
	p := Principal{ID: 42, Role: RoleModerator, Status: StatusActive}

	token, err := GenerateToken("test-secret", p, time.Hour)
	assert.NoError(t, err)

	got, err := auth.Authenticate(token)
	assert.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestJWTAuthenticatorRejects(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "garbage token",
			token: func(t *testing.T) string { return "not.a.token" },
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				tok, err := GenerateToken("other-secret", Principal{ID: 1, Role: RoleMember, Status: StatusActive}, time.Hour)
				assert.NoError(t, err)
				return tok
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				tok, err := GenerateToken("test-secret", Principal{ID: 1, Role: RoleMember, Status: StatusActive}, -time.Minute)
				assert.NoError(t, err)
				return tok
			},
		},
		{
			name: "suspended principal",
			token: func(t *testing.T) string {
				tok, err := GenerateToken("test-secret", Principal{ID: 1, Role: RoleMember, Status: StatusSuspended}, time.Hour)
				assert.NoError(t, err)
				return tok
			},
		},
	}

	auth := NewJWTAuthenticator("test-secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(tt.token(t))
			assert.ErrorIs(t, err, ErrAuth)
		})
	}
}

func TestPrincipalPrivileged(t *testing.T) {
	assert.False(t, Principal{Role: RoleMember}.Privileged())
	assert.True(t, Principal{Role: RoleModerator}.Privileged())
	assert.True(t, Principal{Role: RoleAdmin}.Privileged())
}
