package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tournevent/postershop/internal/domain"
)

// Postgres stores orders and return requests in a relational database.
type Postgres struct {
	db DB
}

// NewPostgres creates a Postgres store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const orderColumns = `id, customer_id, customer_name, customer_email, customer_phone,
	shipping_address, total_amount, payment_method, status, notes, return_ids,
	created_at, updated_at`

const itemColumns = `id, order_id, product_id, title, quantity, unit_price, total_price,
	product_type, size, color, returned`

const returnColumns = `id, order_id, order_item_id, customer_id, product, reason,
	customer_note, status, admin_note, tracking_number, pickup_id, refund_amount,
	refund_method, tracking_events, requested_at, updated_at, processed_at`

// CreateOrder inserts the order and its items in one transaction.
func (p *Postgres) CreateOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	returnIDs := o.ReturnIDs
	if returnIDs == nil {
		returnIDs = []string{}
	}

	err = InTx(ctx, p.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO orders (id, customer_id, customer_name, customer_email, customer_phone,
				shipping_address, total_amount, payment_method, status, notes, return_ids,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()), now())
			RETURNING created_at, updated_at`,
			o.ID, o.CustomerID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
			address, o.TotalAmount, o.PaymentMethod, string(o.Status), o.Notes, returnIDs,
			nullTime(o.CreatedAt),
		).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i := range o.Items {
			item := &o.Items[i]
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.OrderID = o.ID
			batch.Queue(`
				INSERT INTO order_items (id, order_id, product_id, title, quantity, unit_price,
					total_price, product_type, size, color, returned, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				item.ID, item.OrderID, item.ProductID, item.Title, item.Quantity, item.UnitPrice,
				item.TotalPrice, string(item.ProductType), item.Size, item.Color, item.Returned, i,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return &domain.ConflictError{Message: "order " + o.ID + " already exists"}
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(p.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.NewNotFound("order", id)
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if err := p.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	tag, err := p.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.NewNotFound("order", id)
	}
	return p.GetOrder(ctx, id)
}

func (p *Postgres) UpdateOrderNotes(ctx context.Context, id, notes string) error {
	return p.execOrder(ctx, id, `UPDATE orders SET notes = $2, updated_at = now() WHERE id = $1`, id, notes)
}

func (p *Postgres) MarkItemReturned(ctx context.Context, orderID, itemID string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE order_items SET returned = TRUE WHERE order_id = $1 AND id = $2`, orderID, itemID)
	if err != nil {
		return fmt.Errorf("mark item returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("order item", itemID)
	}
	return nil
}

func (p *Postgres) AppendReturn(ctx context.Context, orderID, returnID string) error {
	return p.execOrder(ctx, orderID, `
		UPDATE orders SET
			return_ids = CASE WHEN $2 = ANY(return_ids) THEN return_ids ELSE array_append(return_ids, $2) END,
			updated_at = now()
		WHERE id = $1`, orderID, returnID)
}

func (p *Postgres) execOrder(ctx context.Context, id, sql string, args ...any) error {
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("order", id)
	}
	return nil
}

func (p *Postgres) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	var w where
	if filter.CustomerID != "" {
		w.add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		w.add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + w.sql() + ` ORDER BY created_at DESC` + w.limit(filter.Limit)
	rows, err := p.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (p *Postgres) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID
	}

	rows, err := p.db.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item        domain.OrderItem
			productType string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Title, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &productType, &item.Size, &item.Color, &item.Returned); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.ProductType = domain.ProductType(productType)
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// CreateReturn relies on the partial unique index over active returns, so two
// concurrent requests for one item cannot both succeed.
func (p *Postgres) CreateReturn(ctx context.Context, r *domain.ReturnRequest) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	product, events, err := encodeReturn(r)
	if err != nil {
		return err
	}

	err = p.db.QueryRow(ctx, `
		INSERT INTO return_requests (id, order_id, order_item_id, customer_id, product, reason,
			customer_note, status, admin_note, tracking_number, pickup_id, refund_amount,
			refund_method, tracking_events, requested_at, updated_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, now()), now(), $16)
		RETURNING requested_at, updated_at`,
		r.ID, r.OrderID, r.OrderItemID, r.CustomerID, product, r.Reason,
		r.CustomerNote, string(r.Status), r.AdminNote, r.TrackingNumber, r.PickupID, r.RefundAmount,
		r.RefundMethod, events, nullTime(r.RequestedAt), r.ProcessedAt,
	).Scan(&r.RequestedAt, &r.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return activeReturnConflict(r.OrderID, r.OrderItemID)
		}
		return fmt.Errorf("create return request: %w", err)
	}
	return nil
}

func (p *Postgres) GetReturn(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	r, err := scanReturn(p.db.QueryRow(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.NewNotFound("return request", id)
		}
		return nil, fmt.Errorf("get return request %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) UpdateReturn(ctx context.Context, r *domain.ReturnRequest, from domain.ReturnStatus) error {
	product, events, err := encodeReturn(r)
	if err != nil {
		return err
	}

	err = p.db.QueryRow(ctx, `
		UPDATE return_requests SET
			product = $3, reason = $4, customer_note = $5, status = $6, admin_note = $7,
			tracking_number = $8, pickup_id = $9, refund_amount = $10, refund_method = $11,
			tracking_events = $12, processed_at = $13, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		r.ID, string(from),
		product, r.Reason, r.CustomerNote, string(r.Status), r.AdminNote,
		r.TrackingNumber, r.PickupID, r.RefundAmount, r.RefundMethod,
		events, r.ProcessedAt,
	).Scan(&r.UpdatedAt)
	if err == nil {
		return nil
	}
	if !IsNoRows(err) {
		return fmt.Errorf("update return request %s: %w", r.ID, err)
	}
	if _, getErr := p.GetReturn(ctx, r.ID); getErr != nil {
		return getErr
	}
	return staleReturn(r.ID, from)
}

func (p *Postgres) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]*domain.ReturnRequest, error) {
	var w where
	if filter.CustomerID != "" {
		w.add("customer_id = $%d", filter.CustomerID)
	}
	if filter.OrderID != "" {
		w.add("order_id = $%d", filter.OrderID)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + returnColumns + ` FROM return_requests` + w.sql() + ` ORDER BY requested_at DESC` + w.limit(filter.Limit)
	rows, err := p.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.ReturnRequest
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) FindActiveReturn(ctx context.Context, orderID, itemID string) (*domain.ReturnRequest, error) {
	r, err := scanReturn(p.db.QueryRow(ctx, `
		SELECT `+returnColumns+` FROM return_requests
		WHERE order_id = $1 AND order_item_id = $2 AND status IN ('pending', 'approved', 'processing')
		LIMIT 1`, orderID, itemID))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active return: %w", err)
	}
	return r, nil
}

// ============================================================================
// Row mapping
// ============================================================================

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o       domain.Order
		address []byte
		status  string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&address, &o.TotalAmount, &o.PaymentMethod, &status, &o.Notes, &o.ReturnIDs,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &o, nil
}

func scanReturn(row pgx.Row) (*domain.ReturnRequest, error) {
	var (
		r               domain.ReturnRequest
		product, events []byte
		status          string
	)
	if err := row.Scan(&r.ID, &r.OrderID, &r.OrderItemID, &r.CustomerID, &product, &r.Reason,
		&r.CustomerNote, &status, &r.AdminNote, &r.TrackingNumber, &r.PickupID, &r.RefundAmount,
		&r.RefundMethod, &events, &r.RequestedAt, &r.UpdatedAt, &r.ProcessedAt); err != nil {
		return nil, err
	}
	r.Status = domain.ReturnStatus(status)
	if err := json.Unmarshal(product, &r.Product); err != nil {
		return nil, fmt.Errorf("decode product snapshot: %w", err)
	}
	if err := json.Unmarshal(events, &r.TrackingEvents); err != nil {
		return nil, fmt.Errorf("decode tracking events: %w", err)
	}
	return &r, nil
}

func encodeReturn(r *domain.ReturnRequest) (product, events []byte, err error) {
	if product, err = json.Marshal(r.Product); err != nil {
		return nil, nil, fmt.Errorf("encode product snapshot: %w", err)
	}
	list := r.TrackingEvents
	if list == nil {
		list = []domain.TrackingEvent{}
	}
	if events, err = json.Marshal(list); err != nil {
		return nil, nil, fmt.Errorf("encode tracking events: %w", err)
	}
	return product, events, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// where accumulates numbered filter conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) limit(n int) string {
	if n <= 0 {
		return ""
	}
	w.args = append(w.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(w.args))
}

var (
	_ OrderRepository  = (*Postgres)(nil)
	_ ReturnRepository = (*Postgres)(nil)
)
