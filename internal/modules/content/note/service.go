package note

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/processing/aggregate"
	"github.com/mx-space/capture/internal/pkg/pagination"
	"github.com/mx-space/capture/internal/pkg/response"
	"github.com/mx-space/capture/internal/pkg/richdoc"
	"gorm.io/gorm"
)

// Service is the row store for notes and their contributions. Every read is
// scoped to an owner; lookups of rows owned by someone else behave as misses
// and return (nil, nil).
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(ctx context.Context, ownerID string, q pagination.Query, filter ListFilter) ([]models.NoteModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.NoteModel{}).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC")

	if kw := strings.TrimSpace(filter.Query); kw != "" {
		like := "%" + escapeLike(kw) + "%"
		tx = tx.Where("(title LIKE ? ESCAPE '!' OR content_text LIKE ? ESCAPE '!')", like, like)
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		encoded, _ := json.Marshal(tag)
		tx = tx.Where("LOWER(tags) LIKE ? ESCAPE '!'", "%"+escapeLike(string(encoded))+"%")
	}

	var notes []models.NoteModel
	pag, err := pagination.Paginate(tx, q, &notes)
	return notes, pag, err
}

// GetNote returns the note without its contributions.
func (s *Service) GetNote(ctx context.Context, ownerID, id string) (*models.NoteModel, error) {
	var note models.NoteModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

// GetDetail returns the note with its contributions and transcripts.
func (s *Service) GetDetail(ctx context.Context, ownerID, id string) (*models.NoteModel, error) {
	var note models.NoteModel
	err := s.db.WithContext(ctx).
		Preload("AudioContributions", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("AudioContributions.Transcript").
		Preload("TextContributions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, dto *CreateNoteDTO) (*models.NoteModel, error) {
	note := models.NoteModel{
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(dto.Title),
		EditorDoc: richdoc.Empty(),
		Tags:      models.StringArray{}.Union(dto.Tags),
	}
	if dto.ContentText != nil {
		if text := strings.TrimSpace(*dto.ContentText); text != "" {
			note.ContentText = &text
			note.EditorDoc = aggregate.ParagraphDoc(text)
			if note.Title == "" {
				note.Title = aggregate.FallbackTitle(text)
			}
		}
	}
	if err := s.CreateNote(ctx, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// CreateNote inserts a prepared note row.
func (s *Service) CreateNote(ctx context.Context, note *models.NoteModel) error {
	if note.Tags == nil {
		note.Tags = models.StringArray{}
	}
	if note.EditorDoc.Content == nil {
		note.EditorDoc = richdoc.Empty()
	}
	return s.db.WithContext(ctx).Create(note).Error
}

// Update applies a manual edit. Fields left nil are untouched.
func (s *Service) Update(ctx context.Context, ownerID, id string, dto *UpdateNoteDTO) (*models.NoteModel, error) {
	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.ContentText != nil {
		if text := strings.TrimSpace(*dto.ContentText); text != "" {
			updates["content_text"] = text
		} else {
			updates["content_text"] = nil
		}
	}
	if dto.EditorDoc != nil {
		encoded, err := json.Marshal(*dto.EditorDoc)
		if err != nil {
			return nil, err
		}
		updates["editor_doc"] = string(encoded)
	}
	if dto.Tags != nil {
		updates["tags"] = models.StringArray{}.Union(*dto.Tags)
	}
	if len(updates) == 0 {
		return s.GetNote(ctx, ownerID, id)
	}

	ok, err := s.updateNote(ctx, ownerID, id, updates)
	if err != nil || !ok {
		return nil, err
	}
	return s.GetNote(ctx, ownerID, id)
}

// ApplyContent writes a pipeline result to the note. The write is not
// conditional on the version read earlier: the last writer wins.
func (s *Service) ApplyContent(ctx context.Context, ownerID, noteID string, patch models.ContentPatch) (*models.NoteModel, error) {
	doc, err := json.Marshal(patch.EditorDoc)
	if err != nil {
		return nil, fmt.Errorf("encode editor doc: %w", err)
	}

	updates := map[string]interface{}{
		"content_text": patch.ContentText,
		"editor_doc":   string(doc),
	}
	if strings.TrimSpace(patch.ContentText) == "" {
		updates["content_text"] = nil
	}
	if patch.Outline != nil {
		outline, err := json.Marshal(patch.Outline)
		if err != nil {
			return nil, fmt.Errorf("encode outline: %w", err)
		}
		updates["outline"] = string(outline)
	}
	if patch.Tags != nil {
		updates["tags"] = patch.Tags
	}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}

	ok, err := s.updateNote(ctx, ownerID, noteID, updates)
	if err != nil || !ok {
		return nil, err
	}
	return s.GetNote(ctx, ownerID, noteID)
}

// updateNote bumps version and updated_at along with updates. It reports
// false when no live note matched.
func (s *Service) updateNote(ctx context.Context, ownerID, id string, updates map[string]interface{}) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()

	res := s.db.WithContext(ctx).
		Table(models.NoteModel{}.TableName()).
		Where("id = ? AND owner_id = ? AND deleted_at IS NULL", id, ownerID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete soft-deletes the note and removes its contributions and transcripts.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var note models.NoteModel
		if err := tx.Select("id").Where("id = ? AND owner_id = ?", id, ownerID).First(&note).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		audioIDs := tx.Model(&models.AudioContributionModel{}).Select("id").Where("note_id = ?", id)
		if err := tx.Where("audio_id IN (?)", audioIDs).Delete(&models.TranscriptModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", id).Delete(&models.AudioContributionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", id).Delete(&models.TextContributionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.NoteModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// CreateAudio inserts an audio contribution at the next sequence position
// of its note.
func (s *Service) CreateAudio(ctx context.Context, audio *models.AudioContributionModel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&models.AudioContributionModel{}).
			Select("COALESCE(MAX(sequence), 0)").
			Where("note_id = ?", audio.NoteID).
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		audio.Sequence = maxSeq + 1
		return tx.Create(audio).Error
	})
}

func (s *Service) CreateText(ctx context.Context, text *models.TextContributionModel) error {
	return s.db.WithContext(ctx).Create(text).Error
}

// GetAudio returns the contribution with its transcript, if any.
func (s *Service) GetAudio(ctx context.Context, ownerID, noteID, id string) (*models.AudioContributionModel, error) {
	var audio models.AudioContributionModel
	err := s.db.WithContext(ctx).
		Preload("Transcript").
		Where("id = ? AND note_id = ? AND owner_id = ?", id, noteID, ownerID).
		First(&audio).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &audio, nil
}

func (s *Service) GetText(ctx context.Context, ownerID, noteID, id string) (*models.TextContributionModel, error) {
	var text models.TextContributionModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND note_id = ? AND owner_id = ?", id, noteID, ownerID).
		First(&text).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &text, nil
}

// SaveTranscript stores the transcript of an audio contribution. A
// contribution has at most one transcript: when another run stored one
// first, that transcript is returned instead.
func (s *Service) SaveTranscript(ctx context.Context, transcript *models.TranscriptModel) (*models.TranscriptModel, error) {
	err := s.db.WithContext(ctx).Create(transcript).Error
	if err == nil {
		return transcript, nil
	}
	if !isDuplicateKeyError(err) {
		return nil, err
	}

	var existing models.TranscriptModel
	if err := s.db.WithContext(ctx).Where("audio_id = ?", transcript.AudioID).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
