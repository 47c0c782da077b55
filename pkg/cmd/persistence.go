package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/persistence/memory"
	"github.com/quivela/relay/pkg/persistence/postgresql"
)

// NewPersistence builds the store selected by the database URL scheme.
// postgres:// and postgresql:// open a database; memory:// keeps everything
// in-process for development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	case "memory":
		return memory.NewPersistence()
	default:
		panic("unsupported database URL: " + databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
