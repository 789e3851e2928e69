package models

import (
	"time"

	"gorm.io/datatypes"
)

// Anchor attempt outcomes.
const (
	AttemptStatusConfirmed = "confirmed"
	AttemptStatusFailed    = "failed"
)

// AnchorAttempt records one ledger submission attempt for a skill line.
// Written best-effort; the audit trail must never block anchoring itself.
type AnchorAttempt struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID uint           `gorm:"not null;index" json:"session_id"`
	LineID    uint           `gorm:"not null;index" json:"line_id"`
	Status    string         `gorm:"size:16;not null" json:"status"`
	TxHash    string         `gorm:"size:66" json:"tx_hash"`
	Detail    datatypes.JSON `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName maps the model onto the relayer's attempt audit table.
func (AnchorAttempt) TableName() string {
	return "anchor_attempts"
}
