package proforma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/platform/db"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Repository provides persistence for proforma invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*ProformaInvoice, error)
	ListByQuotation(ctx context.Context, quotationID int64) ([]ProformaInvoice, error)
	Create(ctx context.Context, pi ProformaInvoice) (int64, error)
	UpdateStatus(ctx context.Context, id int64, from, to docstate.PIStatus) error
	HasOpenRevision(ctx context.Context, parentID int64) (bool, error)
	NextSequence(ctx context.Context) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const piColumns = `id, quotation_id, pi_number, status, subtotal, tax_amount, total_amount,
parent_pi_id, amendment_detail, created_by, created_at, updated_at`

func scanPI(row pgx.Row) (*ProformaInvoice, error) {
	var pi ProformaInvoice
	var status string
	var amendmentRaw []byte
	err := row.Scan(&pi.ID, &pi.QuotationID, &pi.PINumber, &status, &pi.Subtotal, &pi.TaxAmount,
		&pi.TotalAmount, &pi.ParentPIID, &amendmentRaw, &pi.CreatedBy, &pi.CreatedAt, &pi.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	pi.Status, err = docstate.ParsePIStatus(status)
	if err != nil {
		return nil, err
	}
	if len(amendmentRaw) > 0 {
		var detail AmendmentDetail
		if err := json.Unmarshal(amendmentRaw, &detail); err != nil {
			return nil, fmt.Errorf("decode amendment detail for pi %d: %w", pi.ID, err)
		}
		pi.Amendment = &detail
	}
	return &pi, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*ProformaInvoice, error) {
	return scanPI(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM proforma_invoices WHERE id = $1`, piColumns), id))
}

func (r *repository) ListByQuotation(ctx context.Context, quotationID int64) ([]ProformaInvoice, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM proforma_invoices WHERE quotation_id = $1 ORDER BY created_at, id`, piColumns),
		quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProformaInvoice
	for rows.Next() {
		pi, err := scanPI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pi)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Create(ctx context.Context, pi ProformaInvoice) (int64, error) {
	var amendmentRaw []byte
	if pi.Amendment != nil {
		var err error
		amendmentRaw, err = json.Marshal(pi.Amendment)
		if err != nil {
			return 0, fmt.Errorf("encode amendment detail: %w", err)
		}
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO proforma_invoices (
quotation_id, pi_number, status, subtotal, tax_amount, total_amount,
parent_pi_id, amendment_detail, created_by, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
RETURNING id`,
		pi.QuotationID, pi.PINumber, string(pi.Status), pi.Subtotal, pi.TaxAmount, pi.TotalAmount,
		pi.ParentPIID, amendmentRaw, pi.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateStatus moves a PI between statuses with an optimistic guard on the
// expected current status.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to docstate.PIStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE proforma_invoices SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: proforma invoice %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

// HasOpenRevision reports whether a non-rejected revision already references
// the parent. The second of two racing revision creates fails on this check
// inside its transaction.
func (r *repository) HasOpenRevision(ctx context.Context, parentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM proforma_invoices WHERE parent_pi_id = $1 AND status <> 'rejected')`, parentID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('pi_number_seq')`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
