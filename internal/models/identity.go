package models

// IdentityRecord maps an internal user id to a decentralized identifier.
// A user without a record anchors with an empty DID rather than failing.
type IdentityRecord struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;uniqueIndex" json:"user_id"`
	DID    string `gorm:"column:did;size:255;not null" json:"did"`
}

// TableName maps the model onto the platform's identity table.
func (IdentityRecord) TableName() string {
	return "identity_records"
}
