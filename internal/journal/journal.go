// Package journal records the outcome of every checkout flow the register
// runs, including partial commits the backend cannot roll back.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	FlowNewOrder     = "new_order"
	FlowSendUnpaid   = "send_unpaid"
	FlowPreorderSave = "preorder_save"
	FlowPreorderPay  = "preorder_pay"
	FlowTicketPay    = "ticket_pay"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	// OutcomePartial means an earlier step committed remotely and a later one
	// failed, e.g. a Sale without its Comanda.
	OutcomePartial = "partial"
)

// Submission is one journal row.
type Submission struct {
	ID         uuid.UUID       `json:"id"`
	RegisterID string          `json:"register_id"`
	Flow       string          `json:"flow"`
	ContextID  *int64          `json:"context_id,omitempty"`
	SaleID     *int64          `json:"sale_id,omitempty"`
	ComandaID  *int64          `json:"comanda_id,omitempty"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder persists submissions. Satisfied by *PGRecorder and NopRecorder.
type Recorder interface {
	Record(ctx context.Context, s Submission) error
	Recent(ctx context.Context, registerID string, limit int) ([]Submission, error)
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRecorder writes submissions to the register_submissions table.
type PGRecorder struct {
	db DBTX
}

func NewPGRecorder(db DBTX) *PGRecorder {
	return &PGRecorder{db: db}
}

const insertSubmission = `
INSERT INTO register_submissions
    (id, register_id, flow, context_id, sale_id, comanda_id, outcome, error, total, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)`

// Record inserts s, filling ID and CreatedAt when unset.
func (r *PGRecorder) Record(ctx context.Context, s Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, insertSubmission,
		s.ID, s.RegisterID, s.Flow, s.ContextID, s.SaleID, s.ComandaID,
		s.Outcome, s.Error, s.Total.String(), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const recentSubmissions = `
SELECT id, register_id, flow, context_id, sale_id, comanda_id, outcome, error, total::text, created_at
FROM register_submissions
WHERE register_id = $1
ORDER BY created_at DESC
LIMIT $2`

// Recent lists the newest submissions of a register.
func (r *PGRecorder) Recent(ctx context.Context, registerID string, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, recentSubmissions, registerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			s     Submission
			total string
		)
		if err := rows.Scan(&s.ID, &s.RegisterID, &s.Flow, &s.ContextID, &s.SaleID, &s.ComandaID,
			&s.Outcome, &s.Error, &total, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if s.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total %q: %w", total, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// NopRecorder discards submissions. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Submission) error { return nil }

func (NopRecorder) Recent(context.Context, string, int) ([]Submission, error) {
	return nil, nil
}
