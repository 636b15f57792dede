package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/susu3304/warikanbot/internal/warikan"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	pool *pgxpool.Pool
}

var _ warikan.Store = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations applies the embedded migrations over a separate database/sql
// connection.
func RunMigrations(databaseURL string) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer sqlDB.Close()

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// constraintErrors names the constraints from the migrations that carry a
// domain meaning. Anything else is returned as the driver reported it.
var constraintErrors = map[string]map[string]error{
	codeUniqueViolation: {
		"idx_warikan_groups_active_channel": warikan.ErrChannelBusy,
	},
	codeForeignKeyViolation: {
		"warikan_members_group_id_fkey":                warikan.ErrGroupNotFound,
		"warikan_expenses_group_id_fkey":               warikan.ErrGroupNotFound,
		"warikan_rates_group_id_fkey":                  warikan.ErrGroupNotFound,
		"warikan_tasks_group_id_fkey":                  warikan.ErrGroupNotFound,
		"warikan_task_payments_group_id_fkey":          warikan.ErrGroupNotFound,
		"warikan_reminders_group_id_fkey":              warikan.ErrGroupNotFound,
		"warikan_expense_participants_expense_id_fkey": warikan.ErrExpenseNotFound,
	},
}

// mapError translates driver errors into the warikan sentinels. notFound is
// returned for pgx.ErrNoRows.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if mapped, ok := constraintErrors[pgErr.Code][pgErr.ConstraintName]; ok {
			return mapped
		}
	}
	return err
}
