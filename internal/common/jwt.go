package common

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator resolves a bearer credential to a principal. The accounts
// service owns issuance; the realtime core only verifies.
type Authenticator interface {
	Authenticate(token string) (Principal, error)
}

// Claims carried in the bearer token on top of the registered set.
type Claims struct {
	UserID uint64          `json:"user_id"`
	Role   Role            `json:"role"`
	Status PrincipalStatus `json:"status"`
	jwt.RegisteredClaims
}

type jwtAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) Authenticator {
	return &jwtAuthenticator{secret: []byte(secret)}
}

func (a *jwtAuthenticator) Authenticate(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", ErrAuth)
	}

	p := Principal{ID: claims.UserID, Role: claims.Role, Status: claims.Status}
	if !p.Active() {
		return Principal{}, fmt.Errorf("%w: principal is %s", ErrAuth, p.Status)
	}
	return p, nil
}

// GenerateToken signs a token for the given principal. Used by tests and by
// the dev seed tooling; production tokens come from the accounts service.
func GenerateToken(secret string, p Principal, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: p.ID,
		Role:   p.Role,
		Status: p.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "huddle",
			Subject:   "user-auth",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
