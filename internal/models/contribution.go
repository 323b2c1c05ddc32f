package models

import (
	"time"

	"gorm.io/gorm"
)

// AudioContributionModel is one uploaded audio file attached to a note.
type AudioContributionModel struct {
	ID              string           `json:"id"               gorm:"type:char(36);primaryKey"`
	NoteID          string           `json:"note_id"          gorm:"type:char(36);index;not null"`
	OwnerID         string           `json:"owner_id"         gorm:"type:varchar(64);index;not null"`
	Bucket          string           `json:"bucket"           gorm:"not null"`
	StorageKey      string           `json:"storage_key"      gorm:"type:varchar(512);not null"`
	DurationSeconds *float64         `json:"duration_seconds"`
	MediaType       string           `json:"media_type"       gorm:"type:varchar(128);not null;default:''"`
	Sequence        int              `json:"sequence"         gorm:"not null;default:0"`
	CreatedAt       time.Time        `json:"created"`
	Transcript      *TranscriptModel `json:"transcript,omitempty" gorm:"foreignKey:AudioID"`
}

func (AudioContributionModel) TableName() string { return "audio_contributions" }

// TextContributionModel is one uploaded text or markdown file attached to a note.
type TextContributionModel struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	NoteID     string    `json:"note_id"     gorm:"type:char(36);index;not null"`
	OwnerID    string    `json:"owner_id"    gorm:"type:varchar(64);index;not null"`
	Bucket     string    `json:"bucket"      gorm:"not null"`
	StorageKey string    `json:"storage_key" gorm:"type:varchar(512);not null"`
	MediaType  string    `json:"media_type"  gorm:"type:varchar(128);not null;default:''"`
	CreatedAt  time.Time `json:"created"`
}

func (TextContributionModel) TableName() string { return "text_contributions" }

// TranscriptModel is the transcription of exactly one audio contribution.
type TranscriptModel struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	AudioID   string    `json:"audio_id" gorm:"type:char(36);uniqueIndex;not null"`
	Text      string    `json:"text"     gorm:"type:longtext"`
	Segments  []Segment `json:"segments" gorm:"type:longtext;serializer:json"`
	Language  string    `json:"language" gorm:"type:varchar(16)"`
	CreatedAt time.Time `json:"created"`
}

func (TranscriptModel) TableName() string { return "transcripts" }

// Segment is a time-aligned slice of a transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (a *AudioContributionModel) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}

func (t *TextContributionModel) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

func (t *TranscriptModel) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}
