package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the identity and timestamps of a note. Notes are soft
// deleted; contributions and transcripts are removed with their note.
type Base struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// assignID fills an empty id with a fresh UUID so callers may pick ids up
// front (object keys embed them) or leave it to the insert.
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
