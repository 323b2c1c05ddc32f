package models

import "github.com/mx-space/capture/internal/pkg/richdoc"

// NoteModel is the editable document contributions are merged into.
type NoteModel struct {
	Base
	OwnerID     string      `json:"owner_id"     gorm:"type:varchar(64);index;not null"`
	Title       string      `json:"title"        gorm:"not null;default:''"`
	ContentText *string     `json:"content_text" gorm:"type:longtext"`
	EditorDoc   richdoc.Doc `json:"editor_doc"   gorm:"type:longtext;serializer:json"`
	Outline     *Outline    `json:"outline"      gorm:"type:longtext;serializer:json"`
	Tags        StringArray `json:"tags"         gorm:"type:longtext"`
	Version     int64       `json:"version"      gorm:"not null;default:0"`

	AudioContributions []AudioContributionModel `json:"-" gorm:"foreignKey:NoteID"`
	TextContributions  []TextContributionModel  `json:"-" gorm:"foreignKey:NoteID"`
}

func (NoteModel) TableName() string { return "notes" }

// ContentPatch is the set of note fields a pipeline run writes back. Nil
// fields are left untouched.
type ContentPatch struct {
	ContentText string
	EditorDoc   richdoc.Doc
	Outline     *Outline
	Tags        StringArray
	Title       *string
}
