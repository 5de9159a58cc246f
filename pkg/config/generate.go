package config

import (
	"strings"
)

// GenerateConfigContent returns the default configuration with every
// assignment commented out, ready to be saved as depbundle.toml. Comments
// and section headers are kept so the file documents itself.
func GenerateConfigContent() string {
	lines := strings.Split(DefaultsContent(), "\n")
	for i, line := range lines {
		if isAssignment(line) {
			lines[i] = "# " + line
		}
	}
	return strings.Join(lines, "\n")
}

func isAssignment(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "", strings.HasPrefix(trimmed, "#"):
		return false
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		return false
	}
	return strings.Contains(trimmed, "=")
}
