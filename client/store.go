package client

import "context"

type Store interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Client, error)
}
