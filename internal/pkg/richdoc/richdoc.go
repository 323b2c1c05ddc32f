// Package richdoc models the editable note body as a closed tree of block nodes.
//
// The wire format is the TipTap/ProseMirror JSON shape used by the editor:
//
//	{"type":"doc","content":[{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"..."}]}]}
//
// Only the node kinds the renderers emit are representable. Decoding anything
// else fails, so a Doc held in memory is always a valid editor tree.
package richdoc

import "strings"

// Block is a top-level or nested block node. The set of implementations is
// closed: Heading, Paragraph, BulletList, TaskList.
type Block interface {
	blockType() string
}

// Doc is the root node. A zero Doc is the empty document.
type Doc struct {
	Content []Block
}

// Heading is a heading block with levels 1-6.
type Heading struct {
	Level int
	Text  string
}

// Paragraph is a plain text paragraph. An empty Text renders as an empty paragraph.
type Paragraph struct {
	Text string
}

// BulletList is an unordered list.
type BulletList struct {
	Items []ListItem
}

// ListItem is one entry of a BulletList.
type ListItem struct {
	Content []Block
}

// TaskList is a checkable list.
type TaskList struct {
	Items []TaskItem
}

// TaskItem is one entry of a TaskList.
type TaskItem struct {
	Checked bool
	Content []Block
}

func (Heading) blockType() string    { return "heading" }
func (Paragraph) blockType() string  { return "paragraph" }
func (BulletList) blockType() string { return "bulletList" }
func (TaskList) blockType() string   { return "taskList" }

// Empty returns the empty document.
func Empty() Doc { return Doc{Content: []Block{}} }

// IsEmpty reports whether the document has no blocks.
func (d Doc) IsEmpty() bool { return len(d.Content) == 0 }

// Bullets builds a bullet list with one paragraph per item.
func Bullets(items ...string) BulletList {
	list := BulletList{Items: make([]ListItem, 0, len(items))}
	for _, item := range items {
		list.Items = append(list.Items, ListItem{Content: []Block{Paragraph{Text: item}}})
	}
	return list
}

// Tasks builds an unchecked task list with one paragraph per item.
func Tasks(items ...string) TaskList {
	list := TaskList{Items: make([]TaskItem, 0, len(items))}
	for _, item := range items {
		list.Items = append(list.Items, TaskItem{Content: []Block{Paragraph{Text: item}}})
	}
	return list
}

// ItemText returns the concatenated text of a list item's blocks.
func ItemText(content []Block) string {
	parts := make([]string, 0, len(content))
	for _, b := range content {
		if t := blockText(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// PlainText flattens the document to text, one block per paragraph.
func (d Doc) PlainText() string {
	var lines []string
	for _, b := range d.Content {
		switch n := b.(type) {
		case BulletList:
			for _, item := range n.Items {
				lines = append(lines, ItemText(item.Content))
			}
		case TaskList:
			for _, item := range n.Items {
				lines = append(lines, ItemText(item.Content))
			}
		default:
			lines = append(lines, blockText(b))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n\n"))
}

// Markdown renders the document as GitHub-flavoured markdown.
func (d Doc) Markdown() string {
	var sb strings.Builder
	for i, b := range d.Content {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch n := b.(type) {
		case Heading:
			sb.WriteString(strings.Repeat("#", n.Level))
			sb.WriteString(" ")
			sb.WriteString(n.Text)
			sb.WriteString("\n")
		case Paragraph:
			sb.WriteString(n.Text)
			sb.WriteString("\n")
		case BulletList:
			for _, item := range n.Items {
				sb.WriteString("- ")
				sb.WriteString(ItemText(item.Content))
				sb.WriteString("\n")
			}
		case TaskList:
			for _, item := range n.Items {
				if item.Checked {
					sb.WriteString("- [x] ")
				} else {
					sb.WriteString("- [ ] ")
				}
				sb.WriteString(ItemText(item.Content))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func blockText(b Block) string {
	switch n := b.(type) {
	case Heading:
		return n.Text
	case Paragraph:
		return n.Text
	case BulletList:
		items := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			items = append(items, ItemText(item.Content))
		}
		return strings.Join(items, " ")
	case TaskList:
		items := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			items = append(items, ItemText(item.Content))
		}
		return strings.Join(items, " ")
	}
	return ""
}
