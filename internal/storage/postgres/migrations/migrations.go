package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/slok/infraware/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the job ledger schema on a Postgres database.
type Migrator struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(pool *pgxpool.Pool, logger log.Logger) (*Migrator, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		pool:   pool,
		logger: logger.WithValues(log.Kv{"svc": "storage.PostgresMigrator"}),
	}, nil
}

// Up applies all the pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "apply", func(inst *migrate.Migrate) error { return inst.Up() })
}

// Down reverts all the migrations.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "revert", func(inst *migrate.Migrate) error { return inst.Down() })
}

func (m *Migrator) run(ctx context.Context, action string, f func(inst *migrate.Migrate) error) error {
	// The migrate driver needs database/sql, it shares the connections of the pool.
	db := stdlib.OpenDBFromPool(m.pool)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not create fs: %w", err)
	}

	inst, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := inst.Close()
		if srcErr != nil || dbErr != nil {
			m.logger.Errorf("could not close migration instance: %v, %v", srcErr, dbErr)
		}
	}()

	err = f(inst)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not %s migrations: %w", action, err)
	}

	m.logger.Debugf("Migrations %s done", action)
	return nil
}
