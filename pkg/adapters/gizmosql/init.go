package gizmosql

import (
	"log/slog"

	"github.com/flightbridge/flightbridge/pkg/adapter"

	// Register the DuckDB dialect the adapter renders against.
	_ "github.com/flightbridge/flightbridge/pkg/dialects/duckdb"
)

func init() {
	adapter.Register("gizmosql", func(logger *slog.Logger) adapter.Adapter {
		return New(logger)
	})
}
