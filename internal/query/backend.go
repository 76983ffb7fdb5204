package query

import (
	"context"

	"compass/internal/api"
)

// Stream is an open event stream for one query.
type Stream interface {
	Next(ctx context.Context) (api.Frame, error)
	Close() error
}

// Backend creates sessions and opens query streams.
type Backend interface {
	CreateSession(ctx context.Context, initialMessage string) (string, error)
	OpenStream(ctx context.Context, sessionID, query string) (Stream, error)
}

// ClientBackend adapts an api.Client to Backend.
func ClientBackend(c *api.Client) Backend {
	return clientBackend{c: c}
}

type clientBackend struct {
	c *api.Client
}

func (b clientBackend) CreateSession(ctx context.Context, initialMessage string) (string, error) {
	return b.c.CreateSession(ctx, initialMessage)
}

func (b clientBackend) OpenStream(ctx context.Context, sessionID, query string) (Stream, error) {
	s, err := b.c.OpenStream(ctx, sessionID, query)
	if err != nil {
		return nil, err
	}
	return s, nil
}
