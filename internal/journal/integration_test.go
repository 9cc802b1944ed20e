//go:build integration

package journal_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/cafe-pos/register/internal/journal"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestJournalRoundTrip writes submissions to a real PostgreSQL and reads them
// back newest first.
func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()
	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	rec := journal.NewPGRecorder(pool)
	sale := int64(41)
	preorder := int64(9)
	base := time.Now().Add(-time.Minute)

	if err := rec.Record(ctx, journal.Submission{
		RegisterID: "reg-1",
		Flow:       journal.FlowNewOrder,
		SaleID:     &sale,
		Outcome:    journal.OutcomePartial,
		Error:      "create comanda: kitchen offline",
		Total:      decimal.RequireFromString("33.5383125"),
		CreatedAt:  base,
	}); err != nil {
		t.Fatalf("record partial: %v", err)
	}
	if err := rec.Record(ctx, journal.Submission{
		RegisterID: "reg-1",
		Flow:       journal.FlowPreorderPay,
		ContextID:  &preorder,
		Outcome:    journal.OutcomeSucceeded,
		Total:      decimal.RequireFromString("80"),
		CreatedAt:  base.Add(time.Second),
	}); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := rec.Record(ctx, journal.Submission{
		RegisterID: "reg-2",
		Flow:       journal.FlowTicketPay,
		Outcome:    journal.OutcomeFailed,
	}); err != nil {
		t.Fatalf("record other register: %v", err)
	}

	got, err := rec.Recent(ctx, "reg-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent returned %d rows, want 2", len(got))
	}
	if got[0].Flow != journal.FlowPreorderPay || got[0].ContextID == nil || *got[0].ContextID != 9 {
		t.Errorf("newest row = %+v", got[0])
	}
	if got[1].Outcome != journal.OutcomePartial || got[1].SaleID == nil || *got[1].SaleID != 41 {
		t.Errorf("oldest row = %+v", got[1])
	}
	if !got[1].Total.Equal(decimal.RequireFromString("33.5383125")) {
		t.Errorf("total = %s, want exact value preserved", got[1].Total)
	}
	if got[1].ComandaID != nil {
		t.Errorf("comanda id = %v, want nil", *got[1].ComandaID)
	}
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("register_test"),
		tcpostgres.WithUsername("register"),
		tcpostgres.WithPassword("register"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	return connStr, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// relative to internal/journal
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}
