package apiclient

import (
	"context"
	"time"
)

// Readiness is the data of GET /health/ready.
type Readiness struct {
	Users    int    `json:"users"`
	Groups   int    `json:"groups"`
	LoadedAt string `json:"loaded_at"`
}

// DirectoryInfo describes the active snapshot of a server.
type DirectoryInfo struct {
	Path     string    `json:"path" yaml:"path"`
	Users    int       `json:"users" yaml:"users"`
	Groups   int       `json:"groups" yaml:"groups"`
	LoadedAt time.Time `json:"loaded_at" yaml:"loaded_at"`
	Digest   string    `json:"digest" yaml:"digest"`
}

// Live checks the liveness probe.
func (c *Client) Live(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// Ready checks the readiness probe. A server without a loaded directory
// answers with an *APIError whose IsUnavailable is true.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var r Readiness
	if err := c.get(ctx, "/health/ready", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Directory returns the active snapshot summary.
func (c *Client) Directory(ctx context.Context) (*DirectoryInfo, error) {
	var info DirectoryInfo
	if err := c.get(ctx, "/api/v1/directory", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reload asks the server to reload its records and returns the snapshot
// in effect afterwards. A failed load is returned as an *APIError carrying
// the load error text; the server keeps its previous snapshot.
func (c *Client) Reload(ctx context.Context) (*DirectoryInfo, error) {
	var info DirectoryInfo
	if err := c.post(ctx, "/api/v1/reload", &info); err != nil {
		return nil, err
	}
	return &info, nil
}
