package app

import (
	"context"
	"database/sql"
	"fmt"

	"qualgate/internal/config"
	"qualgate/internal/db"
	"qualgate/internal/engine"
	"qualgate/internal/migrate"
)

// Context holds the shared runtime handles for CLI commands and the server.
type Context struct {
	Workspace string
	DB        *sql.DB
	Engine    engine.Engine
	Config    *config.Config
}

// Open boots a workspace: opens the database, applies migrations, loads
// qualgate.yml if present (built-in defaults otherwise) and seeds the check
// catalog. Seeding is idempotent so repeated opens are safe.
func Open(ctx context.Context, workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.New(conn, cfg)
	if err := eng.SeedCatalog(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	return &Context{Workspace: workspace, DB: conn, Engine: eng, Config: cfg}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
