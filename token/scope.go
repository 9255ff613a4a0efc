package token

import (
	"errors"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

const subjectClaim = "sub"

var (
	// ErrInvalidToken is returned when the token cannot be decoded or carries no usable subject
	ErrInvalidToken = errors.New("invalid token")
	// ErrScopeAccessDenied matches any AccessDeniedError
	ErrScopeAccessDenied = errors.New("token does not grant access to prm")
)

// AccessDeniedError reports a requested PRM that is absent from the token's subject
type AccessDeniedError struct {
	PRM string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("token does not grant access to PRM %s", e.PRM)
}

// Is lets errors.Is(err, ErrScopeAccessDenied) match
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrScopeAccessDenied
}

// Scope is the immutable set of usage points a token grants, with one active selection.
// Claim order and duplicates are preserved.
type Scope struct {
	prms    []string
	members mapset.Set[string]
	active  string
}

// Active returns the PRM requests are issued for
func (s *Scope) Active() string {
	return s.active
}

// PRMs returns a copy of every PRM in claim order
func (s *Scope) PRMs() []string {
	return slices.Clone(s.prms)
}

// Contains reports whether prm is granted by the token
func (s *Scope) Contains(prm string) bool {
	return s.members.Contains(prm)
}

// Len returns the number of PRMs in the claim, duplicates included
func (s *Scope) Len() int {
	return len(s.prms)
}

// Resolver builds scopes from tokens using a pluggable claims decoder
type Resolver struct {
	decoder ClaimsDecoder
}

// NewResolver creates a resolver. A nil decoder falls back to UnverifiedDecoder.
func NewResolver(decoder ClaimsDecoder) *Resolver {
	if decoder == nil {
		decoder = NewUnverifiedDecoder()
	}
	return &Resolver{decoder: decoder}
}

// Resolve extracts the PRMs from token and selects prm as active.
// An empty prm selects the first PRM of the claim.
func (r *Resolver) Resolve(token, prm string) (*Scope, error) {
	claims, err := r.decoder.Decode(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	prms, err := extractPRMs(claims)
	if err != nil {
		return nil, err
	}

	scope := &Scope{
		prms:    prms,
		members: mapset.NewSet(prms...),
		active:  prms[0],
	}

	if prm != "" {
		if !scope.Contains(prm) {
			return nil, &AccessDeniedError{PRM: prm}
		}
		scope.active = prm
	}

	return scope, nil
}

// Resolve is a shorthand for NewResolver(nil).Resolve
func Resolve(token, prm string) (*Scope, error) {
	return NewResolver(nil).Resolve(token, prm)
}

func extractPRMs(claims map[string]any) ([]string, error) {
	sub, ok := claims[subjectClaim]
	if !ok || sub == nil {
		return nil, fmt.Errorf("%w: token has no 'sub' claim", ErrInvalidToken)
	}

	switch v := sub.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%w: token has no 'sub' claim", ErrInvalidToken)
		}
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: token contains no PRMs", ErrInvalidToken)
		}
		return slices.Clone(v), nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: token contains no PRMs", ErrInvalidToken)
		}
		prms := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: 'sub' claim element %d is %T, not a string", ErrInvalidToken, i, item)
			}
			prms = append(prms, s)
		}
		return prms, nil
	default:
		return nil, fmt.Errorf("%w: 'sub' claim is not a string or list", ErrInvalidToken)
	}
}
