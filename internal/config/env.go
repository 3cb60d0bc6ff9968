package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:default} substitution placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} / ${VAR:default} placeholders in raw with
// values from the environment, falling back to the given default when the
// variable is unset or empty.
func SubstituteEnvVars(raw string) string {
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		return def
	})
}
