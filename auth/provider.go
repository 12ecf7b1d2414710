package auth

import (
	"context"

	"github.com/shipanion/gateway/store"
)

// Identity is the principal attached to an authenticated connection. It is
// immutable once bound; the gateway never re-associates a connection with a
// different principal.
type Identity struct {
	Username string
}

// Provider validates bearer tokens and returns identities. The gateway treats
// verification as a black box: it only needs success or failure.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	Bootstrap(ctx context.Context) error
	Name() string
}

// LoginProvider is implemented by providers that support username/password
// login and token issuance.
type LoginProvider interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) (*store.User, error)
}
