// Package backend selects the remote store implementation from
// configuration.
package backend

import (
	"context"
	"fmt"
	"strings"

	"recuento/internal/remote"
	"recuento/internal/remote/cloud"
	"recuento/internal/remote/postgres"
)

// Config selects and configures the remote backend.
type Config struct {
	// Backend is "postgres" or "cloud".
	Backend string

	PostgresDSN string

	CloudBaseURL string
	CloudAPIKey  string
}

// New builds the configured remote store.
func New(ctx context.Context, cfg Config) (remote.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "postgres", "postgresql":
		return postgres.New(ctx, cfg.PostgresDSN)
	case "cloud":
		return cloud.New(cloud.Config{
			BaseURL: cfg.CloudBaseURL,
			APIKey:  cfg.CloudAPIKey,
		})
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", cfg.Backend)
	}
}
