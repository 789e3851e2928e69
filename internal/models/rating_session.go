package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrScoredFieldsFrozen indicates an attempt to mutate scored fields of a
// session that already has at least one anchored skill line. The session hash
// is recomputed from these fields on every anchoring pass, so changing them
// after a line has been anchored would diverge from what is already on chain.
var ErrScoredFieldsFrozen = errors.New("scored fields are frozen once a skill line is anchored")

// RatingSession represents one educator's rating event for one student on one task.
type RatingSession struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	TaskID        uint              `gorm:"not null;index" json:"task_id"`
	RaterID       uint              `gorm:"not null" json:"rater_id"`
	StudentID     uint              `gorm:"not null" json:"student_id"`
	AvgStars      float64           `gorm:"type:numeric(2,1);not null" json:"avg_stars"`
	XP            int               `gorm:"column:xp;not null" json:"xp"`
	SessionHash   *string           `gorm:"size:64" json:"session_hash"`
	TaskIDHash    *string           `gorm:"size:64" json:"task_id_hash"`
	StudentIDHash *string           `gorm:"size:64" json:"student_id_hash"`
	OnChain       bool              `gorm:"column:on_chain;not null;default:false;index" json:"on_chain"`
	CreatedAt     time.Time         `json:"created_at"`
	Skills        []SkillRatingLine `gorm:"foreignKey:SessionID" json:"skills,omitempty"`
}

// TableName maps the model onto the platform's rating sessions table.
func (RatingSession) TableName() string {
	return "rating_sessions"
}

// BeforeUpdate rejects changes to the scored fields once any child line has
// been anchored. Enforced here rather than assumed of callers.
func (s *RatingSession) BeforeUpdate(tx *gorm.DB) error {
	if !tx.Statement.Changed("AvgStars", "XP") {
		return nil
	}

	var anchored int64
	err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&SkillRatingLine{}).
		Where("session_id = ? AND on_chain = ?", s.ID, true).
		Count(&anchored).Error
	if err != nil {
		return err
	}

	if anchored > 0 {
		return ErrScoredFieldsFrozen
	}

	return nil
}

// SkillRatingLine is one skill's star score within a rating session.
type SkillRatingLine struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	SessionID uint    `gorm:"not null;index" json:"session_id"`
	SkillID   uint    `gorm:"not null" json:"skill_id"`
	SkillName string  `gorm:"size:128;not null" json:"skill_name"`
	Stars     int     `gorm:"not null;check:stars >= 1 AND stars <= 5" json:"stars"`
	TxHash    *string `gorm:"size:66" json:"tx_hash"`
	OnChain   bool    `gorm:"column:on_chain;not null;default:false" json:"on_chain"`
}

// TableName maps the model onto the platform's skill lines table.
func (SkillRatingLine) TableName() string {
	return "skill_rating_lines"
}

// Anchored reports whether the line has a confirmed on-chain transaction.
func (l SkillRatingLine) Anchored() bool {
	return l.OnChain && l.TxHash != nil && *l.TxHash != ""
}
