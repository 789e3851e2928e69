package repository

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-anchor/internal/models"
)

// IdentityRepository resolves decentralized identifiers for platform users.
type IdentityRepository interface {
	// ResolveDID returns the user's DID, or the empty string when the record
	// is missing or the lookup fails. Anchoring proceeds with an empty
	// identifier rather than failing.
	ResolveDID(ctx context.Context, userID uint) string
}

type identityRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewIdentityRepository instantiates the repository.
func NewIdentityRepository(db *gorm.DB, logger zerolog.Logger) IdentityRepository {
	return &identityRepository{
		db:     db,
		logger: logger.With().Str("component", "identity_repository").Logger(),
	}
}

func (r *identityRepository) ResolveDID(ctx context.Context, userID uint) string {
	var record models.IdentityRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn().Uint("user_id", userID).Msg("no identity record, anchoring with empty did")
		} else {
			r.logger.Warn().Err(err).Uint("user_id", userID).Msg("identity lookup failed, anchoring with empty did")
		}
		return ""
	}

	return record.DID
}
