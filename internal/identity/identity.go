// Package identity issues and verifies the signed tokens that name the
// actor behind state mutations. The actor login ends up in audit entries,
// so token verification is the only trusted source for it.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dueskeeper/dueskeeper/internal/common"
)

// Provider resolves a request credential to the actor login recorded in
// audit entries.
type Provider interface {
	Actor(credential string) (string, error)
}

// TokenActor is a Provider backed by signed bearer tokens.
type TokenActor struct {
	secretKey []byte
}

func NewTokenActor(secretKey []byte) *TokenActor {
	return &TokenActor{secretKey: secretKey}
}

func (t *TokenActor) Actor(credential string) (string, error) {
	return ActorFromToken(credential, t.secretKey)
}

// Claims extends the registered JWT claims with the actor login.
type Claims struct {
	jwt.RegisteredClaims
	Login string
}

// GenerateToken signs an HS256 token naming login as the actor, valid for
// validityDuration from now.
func GenerateToken(login string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Login: login,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ActorFromToken verifies tokenString and returns the actor login it names.
// Expired tokens map to common.ErrTokenExpired, everything else that fails
// verification to common.ErrInvalidToken.
func ActorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Login, nil
}
