// Package output renders CLI command results in the supported formats.
package output

import (
	"fmt"
	"strings"
)

// Format selects how a command renders its result.
type Format string

const (
	// FormatYAML renders the result as YAML.
	FormatYAML Format = "yaml"
	// FormatJSON renders the result as indented JSON.
	FormatJSON Format = "json"
)

// ParseFormat maps a user-supplied format name to a Format. An empty
// string selects YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected yaml or json)", s)
	}
}

func (f Format) String() string {
	return string(f)
}
