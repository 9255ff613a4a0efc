package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsDecoder extracts the claims mapping from an opaque token string.
// Implementations that verify signatures can be swapped in without changing the Resolver.
type ClaimsDecoder interface {
	Decode(token string) (map[string]any, error)
}

// UnverifiedDecoder reads JWT claims without checking the signature.
// The token issuer is trusted out-of-band; only the claims are needed.
type UnverifiedDecoder struct {
	parser *jwt.Parser
}

// NewUnverifiedDecoder creates a decoder backed by a default jwt parser
func NewUnverifiedDecoder() *UnverifiedDecoder {
	return &UnverifiedDecoder{parser: jwt.NewParser()}
}

// Decode returns the token payload claims
func (d *UnverifiedDecoder) Decode(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: cannot decode token: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
