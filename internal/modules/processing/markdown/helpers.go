package markdown

import (
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var filenameReplacer = strings.NewReplacer("/", "-", "\\", "-", "\"", "'", ":", "-")

// ExportFilename builds a filesystem-safe file name for an exported note.
func ExportFilename(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filenameReplacer.Replace(strings.TrimSpace(title)))
	if name == "" {
		name = "untitled"
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}

// BuildDocument assembles a markdown file from body, optionally preceded by
// a YAML front matter block built from meta.
func BuildDocument(meta map[string]any, body string, includeYAMLHeader bool) string {
	body = strings.TrimSpace(body) + "\n"
	if !includeYAMLHeader || len(meta) == 0 {
		return body
	}
	header, err := yaml.Marshal(meta)
	if err != nil {
		return body
	}
	return "---\n" + strings.TrimSpace(string(header)) + "\n---\n\n" + body
}
