package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims this service understands. Partner is the
// partner name the caller is scoped to; admin tokens may leave it empty and
// act fleet-wide.
type Claims struct {
	Partner string `json:"partner"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

var hs256Parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithExpirationRequired(),
)

// ParseJWT validates an HS256 token and returns its claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	claims := &Claims{}
	token, err := hs256Parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}

	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return nil, fmt.Errorf("auth: unknown role %q", claims.Role)
	}
	if claims.Partner == "" && role != RoleAdmin {
		return nil, errors.New("auth: missing partner scope")
	}
	return claims, nil
}
