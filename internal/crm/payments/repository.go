package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Repository provides persistence for payments.
type Repository interface {
	Get(ctx context.Context, id int64) (*Payment, error)
	ListByQuotation(ctx context.Context, quotationID int64) ([]Payment, error)
	Create(ctx context.Context, p Payment) (int64, error)
	UpdateStatus(ctx context.Context, id int64, from, to docstate.PaymentStatus) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const paymentColumns = `id, quotation_id, pi_id, lead_id, installment_amount, payment_method,
payment_reference, approval_status, payment_date, is_refund, created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.ID, &p.QuotationID, &p.PIID, &p.LeadID, &p.InstallmentAmount, &p.PaymentMethod,
		&p.PaymentReference, &status, &p.PaymentDate, &p.IsRefund, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	p.ApprovalStatus, err = docstate.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns), id))
}

func (r *repository) ListByQuotation(ctx context.Context, quotationID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM payments WHERE quotation_id = $1 ORDER BY payment_date, id`, paymentColumns),
		quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a payment. A unique index on (quotation_id,
// payment_reference) backstops idempotent creation: the retry of a
// timed-out request lands on the constraint, not on a second record.
func (r *repository) Create(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payments (
quotation_id, pi_id, lead_id, installment_amount, payment_method, payment_reference,
approval_status, payment_date, is_refund, created_by, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		p.QuotationID, p.PIID, p.LeadID, p.InstallmentAmount, p.PaymentMethod, p.PaymentReference,
		string(p.ApprovalStatus), p.PaymentDate, p.IsRefund, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: payment %s already recorded for quotation %d",
				shared.ErrConflict, p.PaymentReference, p.QuotationID)
		}
		return 0, err
	}
	return id, nil
}

// UpdateStatus moves a payment between statuses with an optimistic guard on
// the expected current status.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to docstate.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET approval_status = $3, updated_at = NOW()
WHERE id = $1 AND approval_status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}
