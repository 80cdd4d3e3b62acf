package app

import (
	"context"
	"database/sql"
	"fmt"

	"opexhub/internal/config"
	"opexhub/internal/db"
	"opexhub/internal/engine"
	"opexhub/internal/migrate"
)

// Open loads the workspace config, opens and migrates the database and syncs
// the configured workflow masters. The caller closes the returned DB.
func Open(ctx context.Context, workspace string) (*sql.DB, engine.Engine, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, engine.Engine{}, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	eng, err := Bootstrap(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, eng, nil
}

// Bootstrap migrates conn and seeds the workflow masters from cfg.
func Bootstrap(ctx context.Context, conn *sql.DB, cfg *config.Config) (engine.Engine, error) {
	if _, err := migrate.MigrateContext(ctx, conn); err != nil {
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if _, err := eng.SyncMasters(ctx); err != nil {
		return engine.Engine{}, fmt.Errorf("sync workflow masters: %w", err)
	}
	return eng, nil
}
