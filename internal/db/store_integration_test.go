//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/susu3304/warikanbot/internal/warikan"
	"github.com/susu3304/warikanbot/internal/warikan/storetest"
)

// setupPostgresContainer starts a disposable PostgreSQL container, applies the
// migrations and returns a connected store. Everything is torn down with t.
func setupPostgresContainer(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("warikan"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn))
	// a second run is a no-op
	require.NoError(t, RunMigrations(dsn))

	store, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestIntegration_Store(t *testing.T) {
	store := setupPostgresContainer(t)

	storetest.Run(t, func(*testing.T) warikan.Store { return store })

	t.Run("PaymentLedger", func(t *testing.T) {
		testPaymentLedger(t, store)
	})
}

// testPaymentLedger checks that warikan_task_payments only records the part of
// a payment that was applied to tasks.
func testPaymentLedger(t *testing.T, store *DB) {
	ctx := context.Background()
	svc := warikan.NewService(store)

	g, _, err := svc.StartGroup(ctx, warikan.StartInput{GuildID: "guild", Name: "ledger", BaseCurrency: "JPY"})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceTasks(ctx, g.ID, []warikan.Task{{PayerID: "B", PayeeID: "A", Amount: 100}}))

	_, err = svc.RecordPayment(ctx, g.ID, "B", "A", 100000)
	require.ErrorIs(t, err, warikan.ErrInvalidAmount)

	remaining, err := store.RecordPayment(ctx, g.ID, "B", "A", 40)
	require.NoError(t, err)
	assert.InDelta(t, 60, remaining, 1e-9)

	// the store clamps to what is owed even when called directly
	remaining, err = store.RecordPayment(ctx, g.ID, "B", "A", 75)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	rows, err := store.pool.Query(ctx,
		`SELECT amount FROM warikan_task_payments WHERE group_id = $1 ORDER BY id`, g.ID)
	require.NoError(t, err)
	defer rows.Close()
	var recorded []float64
	for rows.Next() {
		var amount float64
		require.NoError(t, rows.Scan(&amount))
		recorded = append(recorded, amount)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []float64{40, 60}, recorded)
}
