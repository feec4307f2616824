package handlers

import (
	"context"

	"github.com/ttygate/ttygate/internal/auth"
	"github.com/ttygate/ttygate/internal/tmux"
)

// SessionProvider is the session directory the handlers consult. It is
// satisfied by *tmux.Service; tests substitute a fake.
type SessionProvider interface {
	ServerAvailable(ctx context.Context) bool
	List(ctx context.Context) ([]tmux.Session, error)
	Get(ctx context.Context, name string) (*tmux.Session, error)
	Create(ctx context.Context, name string) (*tmux.Session, error)
	Kill(ctx context.Context, name string) error
	AttachCommand(id string) []string
}

// Shared collaborators, set from main.go during init. Both are stateless or
// internally synchronized and safe across concurrent connections.
var (
	Sessions SessionProvider
	Tokens   *auth.TokenManager
)

// Version is stamped at build time.
var Version = "0.1.0"
