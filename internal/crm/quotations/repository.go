package quotations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/platform/db"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Repository provides persistence for quotations and their items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
	Create(ctx context.Context, q Quotation) (int64, error)
	ReplaceItems(ctx context.Context, quotationID int64, items []Item) error
	UpdateHeader(ctx context.Context, q Quotation) error
	UpdateStatus(ctx context.Context, id int64, from, to docstate.QuotationStatus) error
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

const quotationColumns = `id, quote_number, customer_id, lead_id, status, discount_rate, tax_rate,
subtotal, discount_amount, taxable_amount, tax_amount, total_amount, notes, created_by, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	var status string
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.CustomerID, &q.LeadID, &status,
		&q.DiscountRate, &q.TaxRate, &q.Subtotal, &q.DiscountAmount, &q.TaxableAmount,
		&q.TaxAmount, &q.TotalAmount, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	q.Status, err = docstate.ParseQuotationStatus(status)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM quotations WHERE id = $1`, quotationColumns), id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, quotation_id, product_name, description, hsn_code,
quantity, unit, unit_price, gst_rate, taxable_amount, line_order
FROM quotation_items WHERE quotation_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.ProductName, &it.Description, &it.HSNCode,
			&it.Quantity, &it.Unit, &it.UnitPrice, &it.GSTRate, &it.TaxableAmount, &it.LineOrder); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	argPos := 1

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		if _, err := docstate.ParseQuotationStatus(*req.Status); err != nil {
			return nil, 0, err
		}
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM quotations %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotations %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) Create(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotations (
quote_number, customer_id, lead_id, status, discount_rate, tax_rate,
subtotal, discount_amount, taxable_amount, tax_amount, total_amount, notes, created_by, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
RETURNING id`,
		q.QuoteNumber, q.CustomerID, q.LeadID, string(q.Status), q.DiscountRate, q.TaxRate,
		q.Subtotal, q.DiscountAmount, q.TaxableAmount, q.TaxAmount, q.TotalAmount, q.Notes, q.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) ReplaceItems(ctx context.Context, quotationID int64, items []Item) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, quotationID); err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		_, err := r.db.Exec(ctx, `INSERT INTO quotation_items (
id, quotation_id, product_name, description, hsn_code, quantity, unit, unit_price, gst_rate, taxable_amount, line_order
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			it.ID, quotationID, it.ProductName, it.Description, it.HSNCode,
			it.Quantity, it.Unit, it.UnitPrice, it.GSTRate, it.TaxableAmount, it.LineOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) UpdateHeader(ctx context.Context, q Quotation) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET
discount_rate = $2, tax_rate = $3, subtotal = $4, discount_amount = $5, taxable_amount = $6,
tax_amount = $7, total_amount = $8, notes = $9, updated_at = NOW()
WHERE id = $1`,
		q.ID, q.DiscountRate, q.TaxRate, q.Subtotal, q.DiscountAmount, q.TaxableAmount,
		q.TaxAmount, q.TotalAmount, q.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus moves a quotation between statuses with an optimistic guard
// on the expected current status, so two racing transitions cannot both win.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to docstate.QuotationStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

func (r *repository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('quotation_number_seq')`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
