package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// resolveSecret expands the indirections allowed in secret values:
//   - $(...)         -> output of the shell command
//   - ${VAR} or $VAR -> environment variable
//   - anything else  -> returned as-is
func resolveSecret(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return runSecretCommand(value[2 : len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

func runSecretCommand(command string) (string, error) {
	out, err := exec.Command("sh", "-c", command).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("command %q failed: %s", command, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command %q failed: %w", command, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// parseFlag reads a feature flag. Only an explicit true-like value enables
// a feature; anything else, including garbage, leaves it off.
func parseFlag(raw string) bool {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
