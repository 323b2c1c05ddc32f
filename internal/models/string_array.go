package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray is a string list stored as a JSON text column. It never
// scans to nil, so tags always serialize as [].
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	return string(b), err
}

func (a *StringArray) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models.StringArray: unsupported Scan type %T", value)
	}

	out := StringArray{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return fmt.Errorf("models.StringArray: %w", err)
		}
		if out == nil {
			out = StringArray{}
		}
	}
	*a = out
	return nil
}

// Union returns a followed by the entries of b it does not already contain.
// Entries are compared case-insensitively after trimming; blanks are dropped.
func (a StringArray) Union(b []string) StringArray {
	out := make(StringArray, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	add := func(item string) {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, item)
	}
	for _, item := range a {
		add(item)
	}
	for _, item := range b {
		add(item)
	}
	return out
}
