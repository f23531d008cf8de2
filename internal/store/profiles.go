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

const profileColumns = `id, email, name, phone, postcode, age_range, created_at, updated_at`

// UpsertProfile inserts or merges a profile keyed on email in one statement,
// so concurrent callers with the same email converge on one row. Empty
// fields never overwrite stored values.
func (s *Store) UpsertProfile(ctx context.Context, buyer models.Buyer) (*models.Profile, error) {
	email := buyer.NormalizedEmail()
	if email == "" {
		return nil, fmt.Errorf("store: upsert profile: empty email")
	}

	var row profileRow
	err := s.db.NewQuery(`
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ({:id}, {:email}, {:name}, {:phone}, {:postcode}, {:age_range}, {:now}, {:now})
		ON CONFLICT (email) DO UPDATE SET
			name      = CASE WHEN excluded.name <> '' THEN excluded.name ELSE profiles.name END,
			phone     = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE profiles.phone END,
			postcode  = CASE WHEN excluded.postcode <> '' THEN excluded.postcode ELSE profiles.postcode END,
			age_range = CASE WHEN excluded.age_range <> '' THEN excluded.age_range ELSE profiles.age_range END,
			updated_at = excluded.updated_at
		RETURNING ` + profileColumns).
		WithContext(ctx).
		Bind(dbx.Params{
			"id":        uuid.NewString(),
			"email":     email,
			"name":      buyer.Name,
			"phone":     buyer.Phone,
			"postcode":  buyer.Postcode,
			"age_range": buyer.AgeRange,
			"now":       s.now().UnixMilli(),
		}).
		One(&row)
	if err != nil {
		return nil, fmt.Errorf("store: upsert profile: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var row profileRow
	err := s.db.NewQuery(`SELECT ` + profileColumns + ` FROM profiles WHERE email = {:email}`).
		WithContext(ctx).
		Bind(dbx.Params{"email": models.Buyer{Email: email}.NormalizedEmail()}).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find profile: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) CountProfiles(ctx context.Context, email string) (int, error) {
	var n int
	err := s.db.NewQuery(`SELECT COUNT(*) FROM profiles WHERE email = {:email}`).
		WithContext(ctx).
		Bind(dbx.Params{"email": models.Buyer{Email: email}.NormalizedEmail()}).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count profiles: %w", err)
	}
	return n, nil
}
