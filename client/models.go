// Package client models relay-publishing principals.
package client

import "github.com/xraph/tollgate/types"

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

type Client struct {
	types.Entity
	ID     string `json:"id"`
	APIKey string `json:"-"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

func (c *Client) Active() bool { return c != nil && c.Status == StatusActive }
