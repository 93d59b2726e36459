// Package config loads runreport settings from a YAML file and the
// Foreman environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// placeholder matches ${NAME}, ${NAME:-fallback} and ${NAME:?message}.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv substitutes environment placeholders in a config document.
//
//	${NAME}            value of NAME, empty when unset
//	${NAME:-fallback}  fallback when NAME is unset or empty
//	${NAME:?message}   error when NAME is unset or empty
//
// Every missing required variable is reported, not just the first.
func ExpandEnv(input string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(input, func(match string) string {
		m := placeholder.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		switch op {
		case "-":
			return arg
		case "?":
			if arg == "" {
				arg = "required"
			}
			missing = append(missing, name+": "+arg)
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variables: %s", strings.Join(missing, "; "))
	}
	return out, nil
}
