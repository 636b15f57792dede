package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/warikan"
)

func TestMigrationsEmbedded(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}

func TestMapError(t *testing.T) {
	notFound := errors.New("not found")
	other := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: pgx.ErrNoRows, want: notFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: notFound},
		{
			name: "active channel",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "idx_warikan_groups_active_channel"},
			want: warikan.ErrChannelBusy,
		},
		{
			name: "member without group",
			err:  &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "warikan_members_group_id_fkey"},
			want: warikan.ErrGroupNotFound,
		},
		{
			name: "participant without expense",
			err:  &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "warikan_expense_participants_expense_id_fkey"},
			want: warikan.ErrExpenseNotFound,
		},
		{name: "passthrough", err: other, want: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, notFound)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapErrorUnknownConstraint(t *testing.T) {
	for _, pgErr := range []*pgconn.PgError{
		{Code: codeUniqueViolation, ConstraintName: "warikan_expenses_pkey"},
		{Code: codeForeignKeyViolation, ConstraintName: "warikan_future_group_id_fkey"},
		{Code: codeUniqueViolation},
		// right name, wrong code
		{Code: codeForeignKeyViolation, ConstraintName: "idx_warikan_groups_active_channel"},
	} {
		got := mapError(pgErr, nil)
		assert.Same(t, pgErr, got, pgErr.ConstraintName)
		assert.NotErrorIs(t, got, warikan.ErrChannelBusy)
		assert.NotErrorIs(t, got, warikan.ErrGroupNotFound)
	}
}

func TestMappedConstraintsExist(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000001_create_warikan.up.sql")
	require.NoError(t, err)
	schema := string(up)

	for _, byName := range constraintErrors {
		for name := range byName {
			if !strings.HasSuffix(name, "_fkey") {
				assert.Contains(t, schema, name)
				continue
			}
			// default foreign key names are <table>_<column>_fkey
			table := strings.TrimSuffix(name, "_fkey")
			table = strings.TrimSuffix(table, "_group_id")
			table = strings.TrimSuffix(table, "_expense_id")
			assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", name)
		}
	}
}
