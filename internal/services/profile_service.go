package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
)

type ProfileService struct {
	store  *store.Store
	logger *slog.Logger
}

func NewProfileService(st *store.Store, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: st, logger: logger}
}

// Upsert returns the single profile for buyer's email, creating it or
// filling in fields the buyer supplied this time.
func (s *ProfileService) Upsert(ctx context.Context, buyer models.Buyer) (*models.Profile, error) {
	email := buyer.NormalizedEmail()
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return nil, fmt.Errorf("%w %q: %w", status.ErrInvalidEmail, email, err)
	}

	buyer.Email = email
	buyer.Name = strings.TrimSpace(buyer.Name)
	buyer.Phone = strings.TrimSpace(buyer.Phone)
	buyer.Postcode = strings.TrimSpace(buyer.Postcode)
	buyer.AgeRange = strings.TrimSpace(buyer.AgeRange)

	profile, err := s.store.UpsertProfile(ctx, buyer)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("profile upsert", "profile_id", profile.ID, "email", email)
	return profile, nil
}
