// Package kv opens the embedded Badger database backing the runtime's
// durable stores. One database instance may be shared by multiple stores;
// each store owns its own key prefix.
package kv

import (
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Config selects where the database lives.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests and ephemeral runs.
	InMemory bool
}

// Open opens a Badger instance. Badger's own logging is disabled; the
// runtime's diagnostics flow through the telemetry pipeline instead.
func Open(cfg Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, fmt.Errorf("store path is required for a persistent database")
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return db, nil
}
