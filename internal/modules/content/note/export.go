package note

import (
	"strings"
	"time"

	"github.com/mx-space/capture/internal/models"
	"github.com/mx-space/capture/internal/modules/processing/markdown"
)

// noteBody renders the editor document, or the merged text when the
// document is empty.
func noteBody(n *models.NoteModel) string {
	if !n.EditorDoc.IsEmpty() {
		return n.EditorDoc.Markdown()
	}
	if n.ContentText != nil {
		return *n.ContentText
	}
	return ""
}

func exportMarkdown(n *models.NoteModel, frontMatter bool) string {
	meta := map[string]any{
		"title":   n.Title,
		"created": n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if modified := nullableModified(n.UpdatedAt); modified != nil {
		meta["modified"] = modified.UTC().Format(time.RFC3339)
	}
	if len(n.Tags) > 0 {
		meta["tags"] = []string(n.Tags)
	}
	if n.Outline != nil && n.Outline.Language != "" {
		meta["language"] = n.Outline.Language
	}
	return markdown.BuildDocument(meta, noteBody(n), frontMatter)
}

func exportHTML(n *models.NoteModel) string {
	info := n.CreatedAt.UTC().Format("2006-01-02 15:04")
	if len(n.Tags) > 0 {
		info += " · " + strings.Join(n.Tags, ", ")
	}
	return markdown.RenderHTMLDocument(markdown.ToHTML(noteBody(n)), markdown.DocumentOptions{
		Title: n.Title,
		Info:  info,
	})
}
