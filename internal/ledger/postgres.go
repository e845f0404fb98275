package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/store"
)

// Postgres is a Ledger backed by the shipments and warehouses tables.
type Postgres struct {
	db store.DB
}

// NewPostgres creates a Postgres ledger.
func NewPostgres(db store.DB) *Postgres {
	return &Postgres{db: db}
}

const shipmentColumns = `id, waybill, provenance, order_id, customer_name, customer_phone,
	delivery_address, payment_mode, cod_amount, weight, warehouse_name, status,
	pickup_id, pickup_date, pickup_status, pickup_attempts, carrier_error,
	tracking_events, created_at, updated_at`

const warehouseColumns = `id, name, email, phone, address, return_address, active, created_at, updated_at`

// CreateShipment upserts by waybill, keeping the original id and creation time.
func (p *Postgres) CreateShipment(ctx context.Context, s *domain.Shipment) error {
	if s.Waybill == "" {
		return domain.NewValidation("waybill", "is required")
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	address, err := json.Marshal(s.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("encode delivery address: %w", err)
	}
	events, err := marshalEvents(s.TrackingEvents)
	if err != nil {
		return err
	}

	row := p.db.QueryRow(ctx, `
		INSERT INTO shipments (
			id, waybill, provenance, order_id, customer_name, customer_phone,
			delivery_address, payment_mode, cod_amount, weight, warehouse_name, status,
			pickup_id, pickup_date, pickup_status, pickup_attempts, carrier_error,
			tracking_events, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
		ON CONFLICT (waybill) DO UPDATE SET
			provenance = EXCLUDED.provenance,
			order_id = EXCLUDED.order_id,
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			delivery_address = EXCLUDED.delivery_address,
			payment_mode = EXCLUDED.payment_mode,
			cod_amount = EXCLUDED.cod_amount,
			weight = EXCLUDED.weight,
			warehouse_name = EXCLUDED.warehouse_name,
			status = EXCLUDED.status,
			pickup_id = EXCLUDED.pickup_id,
			pickup_date = EXCLUDED.pickup_date,
			pickup_status = EXCLUDED.pickup_status,
			pickup_attempts = EXCLUDED.pickup_attempts,
			carrier_error = EXCLUDED.carrier_error,
			tracking_events = EXCLUDED.tracking_events,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		s.ID, s.Waybill, string(s.Provenance), s.OrderID, s.CustomerName, s.CustomerPhone,
		address, string(s.PaymentMode), s.CODAmount, s.Weight, s.WarehouseName, string(s.Status),
		s.Pickup.PickupID, s.Pickup.PickupDate, string(s.Pickup.Status), s.Pickup.Attempts, s.CarrierError,
		events,
	)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("upsert shipment %s: %w", s.Waybill, err)
	}
	return nil
}

// UpdateShipment writes only the supplied columns, so concurrent updates of
// different fields on one waybill do not overwrite each other.
func (p *Postgres) UpdateShipment(ctx context.Context, waybill string, u domain.ShipmentUpdate) (*domain.Shipment, error) {
	if u.IsEmpty() {
		return p.GetShipment(ctx, waybill)
	}

	var address []byte
	if u.DeliveryAddress != nil {
		b, err := json.Marshal(u.DeliveryAddress)
		if err != nil {
			return nil, fmt.Errorf("encode delivery address: %w", err)
		}
		address = b
	}

	row := p.db.QueryRow(ctx, `
		UPDATE shipments SET
			status = COALESCE($2, status),
			customer_name = COALESCE($3, customer_name),
			customer_phone = COALESCE($4, customer_phone),
			delivery_address = COALESCE($5::jsonb, delivery_address),
			warehouse_name = COALESCE($6, warehouse_name),
			pickup_id = COALESCE($7, pickup_id),
			pickup_date = COALESCE($8, pickup_date),
			pickup_status = COALESCE($9, pickup_status),
			pickup_attempts = COALESCE($10, pickup_attempts),
			carrier_error = COALESCE($11, carrier_error),
			updated_at = now()
		WHERE waybill = $1
		RETURNING `+shipmentColumns,
		waybill,
		stringPtr(u.Status), u.CustomerName, u.CustomerPhone, address, u.WarehouseName,
		u.PickupID, u.PickupDate, stringPtr(u.PickupStatus), u.PickupAttempts, u.CarrierError,
	)
	s, err := scanShipment(row)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, domain.NewNotFound("shipment", waybill)
		}
		return nil, fmt.Errorf("update shipment %s: %w", waybill, err)
	}
	return s, nil
}

func (p *Postgres) UpdateShipmentStatus(ctx context.Context, waybill string, status domain.ShipmentStatus) (*domain.Shipment, error) {
	if !status.IsValid() {
		return nil, domain.NewValidation("status", "unknown shipment status "+string(status))
	}
	return p.UpdateShipment(ctx, waybill, domain.ShipmentUpdate{Status: &status})
}

// AppendTrackingEvents locks the row so concurrent refreshes cannot lose events.
func (p *Postgres) AppendTrackingEvents(ctx context.Context, waybill string, events []domain.TrackingEvent) (*domain.Shipment, error) {
	var out *domain.Shipment
	err := store.InTx(ctx, p.db, func(tx pgx.Tx) error {
		s, err := scanShipment(tx.QueryRow(ctx,
			`SELECT `+shipmentColumns+` FROM shipments WHERE waybill = $1 FOR UPDATE`, waybill))
		if err != nil {
			if store.IsNoRows(err) {
				return domain.NewNotFound("shipment", waybill)
			}
			return err
		}

		fresh := MergeEvents(s.TrackingEvents, events)
		if len(fresh) == 0 {
			out = s
			return nil
		}
		s.TrackingEvents = append(s.TrackingEvents, fresh...)

		b, err := marshalEvents(s.TrackingEvents)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`UPDATE shipments SET tracking_events = $2, updated_at = now() WHERE waybill = $1 RETURNING updated_at`,
			waybill, b,
		).Scan(&s.UpdatedAt); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("append tracking events %s: %w", waybill, err)
	}
	return out, nil
}

func (p *Postgres) GetShipment(ctx context.Context, waybill string) (*domain.Shipment, error) {
	s, err := scanShipment(p.db.QueryRow(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE waybill = $1`, waybill))
	if err != nil {
		if store.IsNoRows(err) {
			return nil, domain.NewNotFound("shipment", waybill)
		}
		return nil, fmt.Errorf("get shipment %s: %w", waybill, err)
	}
	return s, nil
}

// ListShipments returns matching shipments, newest first.
func (p *Postgres) ListShipments(ctx context.Context, filter domain.ShipmentFilter) ([]*domain.Shipment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.OrderID != "" {
		add("order_id = $%d", filter.OrderID)
	}
	if filter.CustomerPhone != "" {
		add("customer_phone = $%d", filter.CustomerPhone)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, waybill`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateWarehouse(ctx context.Context, w *domain.Warehouse) error {
	if w.Name == "" {
		return domain.NewValidation("name", "is required")
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	address, err := json.Marshal(w.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	returnAddress, err := json.Marshal(w.ReturnAddress)
	if err != nil {
		return fmt.Errorf("encode return address: %w", err)
	}

	err = p.db.QueryRow(ctx, `
		INSERT INTO warehouses (id, name, email, phone, address, return_address, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at`,
		w.ID, w.Name, w.Email, w.Phone, address, returnAddress, w.Active,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return &domain.ConflictError{Message: "warehouse " + w.Name + " already exists"}
		}
		return fmt.Errorf("insert warehouse: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateWarehouse(ctx context.Context, id string, u domain.WarehouseUpdate) (*domain.Warehouse, error) {
	var address, returnAddress []byte
	if u.Address != nil {
		b, err := json.Marshal(u.Address)
		if err != nil {
			return nil, fmt.Errorf("encode address: %w", err)
		}
		address = b
	}
	if u.ReturnAddress != nil {
		b, err := json.Marshal(u.ReturnAddress)
		if err != nil {
			return nil, fmt.Errorf("encode return address: %w", err)
		}
		returnAddress = b
	}

	w, err := scanWarehouse(p.db.QueryRow(ctx, `
		UPDATE warehouses SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			address = COALESCE($5::jsonb, address),
			return_address = COALESCE($6::jsonb, return_address),
			active = COALESCE($7, active),
			updated_at = now()
		WHERE id = $1
		RETURNING `+warehouseColumns,
		id, u.Name, u.Email, u.Phone, address, returnAddress, u.Active,
	))
	if err != nil {
		switch {
		case store.IsNoRows(err):
			return nil, domain.NewNotFound("warehouse", id)
		case store.IsUniqueViolation(err):
			return nil, &domain.ConflictError{Message: "warehouse " + *u.Name + " already exists"}
		}
		return nil, fmt.Errorf("update warehouse %s: %w", id, err)
	}
	return w, nil
}

func (p *Postgres) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	return p.getWarehouse(ctx, "id", id)
}

func (p *Postgres) GetWarehouseByName(ctx context.Context, name string) (*domain.Warehouse, error) {
	return p.getWarehouse(ctx, "name", name)
}

func (p *Postgres) getWarehouse(ctx context.Context, column, value string) (*domain.Warehouse, error) {
	w, err := scanWarehouse(p.db.QueryRow(ctx,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE `+column+` = $1`, value))
	if err != nil {
		if store.IsNoRows(err) {
			return nil, domain.NewNotFound("warehouse", value)
		}
		return nil, fmt.Errorf("get warehouse %s: %w", value, err)
	}
	return w, nil
}

func (p *Postgres) ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error) {
	query := `SELECT ` + warehouseColumns + ` FROM warehouses`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ============================================================================
// Row mapping
// ============================================================================

func scanShipment(row pgx.Row) (*domain.Shipment, error) {
	var (
		s                                           domain.Shipment
		provenance, paymentMode, status, pickupStat string
		pickupDate                                  *time.Time
		address, events                             []byte
	)
	err := row.Scan(
		&s.ID, &s.Waybill, &provenance, &s.OrderID, &s.CustomerName, &s.CustomerPhone,
		&address, &paymentMode, &s.CODAmount, &s.Weight, &s.WarehouseName, &status,
		&s.Pickup.PickupID, &pickupDate, &pickupStat, &s.Pickup.Attempts, &s.CarrierError,
		&events, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Provenance = domain.Provenance(provenance)
	s.PaymentMode = domain.PaymentMode(paymentMode)
	s.Status = domain.ShipmentStatus(status)
	s.Pickup.Status = domain.PickupStatus(pickupStat)
	s.Pickup.PickupDate = pickupDate

	if err := json.Unmarshal(address, &s.DeliveryAddress); err != nil {
		return nil, fmt.Errorf("decode delivery address: %w", err)
	}
	if err := json.Unmarshal(events, &s.TrackingEvents); err != nil {
		return nil, fmt.Errorf("decode tracking events: %w", err)
	}
	return &s, nil
}

func scanWarehouse(row pgx.Row) (*domain.Warehouse, error) {
	var (
		w                      domain.Warehouse
		address, returnAddress []byte
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Email, &w.Phone, &address, &returnAddress,
		&w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &w.Address); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if err := json.Unmarshal(returnAddress, &w.ReturnAddress); err != nil {
		return nil, fmt.Errorf("decode return address: %w", err)
	}
	return &w, nil
}

func marshalEvents(events []domain.TrackingEvent) ([]byte, error) {
	if events == nil {
		events = []domain.TrackingEvent{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode tracking events: %w", err)
	}
	return b, nil
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

var _ Ledger = (*Postgres)(nil)
