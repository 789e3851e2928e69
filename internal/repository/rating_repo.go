package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-anchor/internal/models"
)

// ErrSessionNotFound indicates the rating session no longer exists.
var ErrSessionNotFound = errors.New("rating session not found")

// ErrLineNotFound indicates the skill rating line no longer exists.
var ErrLineNotFound = errors.New("skill rating line not found")

// RatingRepository defines data operations for anchoring rating sessions.
type RatingRepository interface {
	ListUnanchoredSessions(ctx context.Context) ([]models.RatingSession, error)
	ListSkillLines(ctx context.Context, sessionID uint) ([]models.SkillRatingLine, error)
	RecordSessionHashes(ctx context.Context, sessionID uint, sessionHash, taskHash, studentHash string) error
	RecordSkillAnchored(ctx context.Context, lineID uint, txHash string) error
	RecordSessionFullyAnchored(ctx context.Context, sessionID uint) error
	CreateAttempt(ctx context.Context, attempt *models.AnchorAttempt) error
}

type ratingRepository struct {
	db *gorm.DB
}

// NewRatingRepository instantiates the repository.
func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

// ListUnanchoredSessions returns sessions not yet fully anchored, oldest
// first. Oldest-first bounds how long any single rating stays unanchored.
func (r *ratingRepository) ListUnanchoredSessions(ctx context.Context) ([]models.RatingSession, error) {
	var sessions []models.RatingSession
	err := r.db.WithContext(ctx).
		Where("on_chain = ?", false).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *ratingRepository) ListSkillLines(ctx context.Context, sessionID uint) ([]models.SkillRatingLine, error) {
	var lines []models.SkillRatingLine
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	return lines, nil
}

// RecordSessionHashes stores the computed content hashes. Overwriting is safe
// because hashing is deterministic over the stored values.
func (r *ratingRepository) RecordSessionHashes(ctx context.Context, sessionID uint, sessionHash, taskHash, studentHash string) error {
	result := r.db.WithContext(ctx).
		Model(&models.RatingSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"session_hash":    sessionHash,
			"task_id_hash":    taskHash,
			"student_id_hash": studentHash,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// RecordSkillAnchored flips the line's on_chain flag and stores its
// transaction hash. The transition is monotonic; callers must gate on the
// line's current on_chain state before submitting to the ledger.
func (r *ratingRepository) RecordSkillAnchored(ctx context.Context, lineID uint, txHash string) error {
	result := r.db.WithContext(ctx).
		Model(&models.SkillRatingLine{}).
		Where("id = ?", lineID).
		Updates(map[string]interface{}{
			"tx_hash":  txHash,
			"on_chain": true,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrLineNotFound
	}

	return nil
}

func (r *ratingRepository) RecordSessionFullyAnchored(ctx context.Context, sessionID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.RatingSession{}).
		Where("id = ?", sessionID).
		Update("on_chain", true)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *ratingRepository) CreateAttempt(ctx context.Context, attempt *models.AnchorAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}
