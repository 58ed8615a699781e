// Package identity verifies who is booking. The wizard only needs an
// authenticated owner at finalize time; everything else is anonymous.
package identity

import (
	"context"
	"errors"
)

// User is the authenticated principal attached to a finalized booking.
type User struct {
	ID            string
	EmailVerified bool
}

// ErrUnauthenticated is returned when no valid identity accompanies a
// request that requires one.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// StaticVerifier maps fixed tokens to users. Test and local-run helper.
type StaticVerifier map[string]User

func (s StaticVerifier) Verify(ctx context.Context, token string) (User, error) {
	u, ok := s[token]
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return u, nil
}
