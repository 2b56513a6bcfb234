package models

import "time"

// Summary is the persisted result of one successful summarization. Rows are
// create-only: there is no update or delete path in the API, removal happens
// through the operator tooling in scripts/.
type Summary struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint   `gorm:"index;not null"`
	User      User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FileName  string `gorm:"size:255;not null"`
	// OriginalText is the extracted source text, already truncated to the
	// configured bound before it reaches this struct.
	OriginalText string `gorm:"type:text;not null"`
	SummaryText  string `gorm:"type:text;not null"`
}
