// Package config handles YAML config file loading for seam merge.
package config

import (
	"fmt"
	"os"
	"regexp"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// UnsetVarError reports a ${VAR:?message} reference to an unset or empty
// variable.
type UnsetVarError struct {
	Name    string
	Message string
}

func (e *UnsetVarError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: parameter not set", e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ExpandEnv replaces variable references in input with environment values.
//
//   - ${VAR} expands to the value, or empty string if unset
//   - ${VAR:-default} expands to the value, or default if unset or empty
//   - ${VAR:?message} expands to the value, or fails with message
//
// The first failing ${VAR:?} is returned as *UnsetVarError.
func ExpandEnv(input string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		switch op {
		case "-":
			return arg
		case "?":
			if firstErr == nil {
				firstErr = &UnsetVarError{Name: name, Message: arg}
			}
		}
		return ""
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
