// Package proctitle names the running process so ps and top show which
// capture role it serves.
package proctitle

import "strings"

// Title builds "capture" or "capture-<role>".
func Title(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return "capture"
	}
	return "capture-" + role
}
