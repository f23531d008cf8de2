package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
)

func (s *Store) CreateEvent(ctx context.Context, ev models.Event) (*models.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.NewQuery(`INSERT INTO events (id, name, starts_at) VALUES ({:id}, {:name}, {:starts})`).
		WithContext(ctx).
		Bind(dbx.Params{"id": ev.ID, "name": ev.Name, "starts": ev.StartsAt.UnixMilli()}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("store: create event: %w", err)
	}
	return &ev, nil
}

func (s *Store) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.NewQuery(`
		INSERT INTO products (id, event_id, name, stock_limit, grace_window_seconds, updated_at)
		VALUES ({:id}, {:event}, {:name}, {:limit}, {:grace}, {:now})`).
		WithContext(ctx).
		Bind(dbx.Params{
			"id":    p.ID,
			"event": p.EventID,
			"name":  p.Name,
			"limit": intOrNull(p.StockLimit),
			"grace": intOrNull(p.GraceWindow),
			"now":   s.now().UnixMilli(),
		}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("store: create product: %w", err)
	}
	return &p, nil
}

func (s *Store) FindProduct(ctx context.Context, productID string) (*models.Product, error) {
	var row struct {
		ID          string        `db:"id"`
		EventID     string        `db:"event_id"`
		Name        string        `db:"name"`
		StockLimit  sql.NullInt64 `db:"stock_limit"`
		GraceWindow sql.NullInt64 `db:"grace_window_seconds"`
	}
	err := s.db.NewQuery(`SELECT id, event_id, name, stock_limit, grace_window_seconds FROM products WHERE id = {:id}`).
		WithContext(ctx).
		Bind(dbx.Params{"id": productID}).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find product: %w", err)
	}
	return &models.Product{
		ID:          row.ID,
		EventID:     row.EventID,
		Name:        row.Name,
		StockLimit:  nullInt(row.StockLimit),
		GraceWindow: nullInt(row.GraceWindow),
	}, nil
}

// ProductIDs lists every product, used by the occupancy gauge.
func (s *Store) ProductIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewQuery(`SELECT id FROM products ORDER BY id`).WithContext(ctx).Column(&ids)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	return ids, nil
}

// Availability is a point-in-time snapshot. It is never used to decide a
// reservation; Reserve re-checks inside its own transaction.
func (s *Store) Availability(ctx context.Context, productID string) (*models.Availability, error) {
	var row struct {
		StockLimit sql.NullInt64 `db:"stock_limit"`
		Occupied   int           `db:"occupied"`
	}

	params := s.clockParams()
	params["product"] = productID
	err := s.db.NewQuery(`SELECT p.stock_limit AS stock_limit, ` + occupancySQL + ` AS occupied FROM products p WHERE p.id = {:product}`).
		WithContext(ctx).
		Bind(params).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: availability: %w", err)
	}

	a := &models.Availability{ProductID: productID, Occupied: row.Occupied}
	if row.StockLimit.Valid {
		limit := int(row.StockLimit.Int64)
		remaining := max(limit-row.Occupied, 0)
		a.Limit = &limit
		a.Remaining = &remaining
		a.SoldOut = remaining == 0
	}
	return a, nil
}

func intOrNull(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
