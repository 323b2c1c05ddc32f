package models

// Outline is the derived, disposable structured summary of a note.
type Outline struct {
	Title         string     `json:"title"`
	Highlights    []string   `json:"highlights"`
	Insights      []string   `json:"insights"`
	OpenQuestions []string   `json:"open_questions"`
	NextSteps     []NextStep `json:"next_steps"`
	Tags          []string   `json:"tags"`
	Language      string     `json:"language"`
}

// NextStep is an actionable item; Due is an optional YYYY-MM-DD date.
type NextStep struct {
	Text string  `json:"text"`
	Due  *string `json:"due,omitempty"`
}

// OutlineTags is the fixed vocabulary outline tags are drawn from.
var OutlineTags = []string{
	"idea", "meeting", "task", "journal", "research", "decision",
	"question", "reference", "personal", "work", "learning", "planning",
}

// IsOutlineTag reports whether tag belongs to the outline vocabulary.
func IsOutlineTag(tag string) bool {
	for _, t := range OutlineTags {
		if t == tag {
			return true
		}
	}
	return false
}
