package session

import (
	"context"
	"log/slog"

	"github.com/receptionai/voice-bridge/internal/auth"
	"github.com/receptionai/voice-bridge/internal/realtime"
)

// RealtimeDialer implements Dialer over the realtime websocket client.
type RealtimeDialer struct {
	Config realtime.ClientConfig
	Logger *slog.Logger
}

func (d *RealtimeDialer) Dial(ctx context.Context, token string, handler realtime.Handler) (Conn, error) {
	return realtime.Dial(ctx, d.Config, token, handler, d.Logger)
}

// GrantFunc adapts a function to CredentialSource.
type GrantFunc func(ctx context.Context) (*auth.SessionGrant, error)

func (f GrantFunc) FetchGrant(ctx context.Context) (*auth.SessionGrant, error) {
	return f(ctx)
}
