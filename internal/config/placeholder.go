package config

import (
	"fmt"
	"strings"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// placeholderPatterns mirrors original_source's placeholder_validator.rs:
// substrings that indicate a secret-bearing config value was copied from an
// example file rather than generated.
var placeholderPatterns = []string{
	"your-", "your_", "xxx", "example", "changeme", "change_me",
	"placeholder", "todo", "fixme", "dummy", "test123",
	"password123", "secret123", "key123", "-here", "_here",
	"default", "sample",
}

// ValidateNoPlaceholder checks value for a placeholder pattern. In a
// production build it returns a KindSecurity error; callers in development
// mode should log the same error instead of aborting (see
// ValidateAllCritical).
func ValidateNoPlaceholder(varName, value string) error {
	if len(value) < 10 {
		return nil
	}
	lower := strings.ToLower(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(lower, pattern) {
			shown := value
			if len(shown) > 50 {
				shown = shown[:50] + "..."
			}
			return coreerrors.Security(
				"%s contains placeholder pattern %q (value: %s) - generate a real secret before deploying",
				varName, pattern, shown,
			)
		}
	}
	return nil
}

// criticalVars are the secret-bearing configuration keys that must be
// checked for placeholder values at startup.
var criticalVars = []string{
	"DB_ENCRYPTION_KEY",
	"ARBITER_PUBKEY",
}

// ValidateAllCritical validates every critical env-derived secret. In
// production it returns the first violation as an error the caller should
// abort startup on; in development it returns nil after logging warnings
// via the supplied warn func, matching §7's Security taxonomy ("abort
// startup" in production, "log and continue" in development).
func ValidateAllCritical(env map[string]string, production bool, warn func(string)) error {
	for _, name := range criticalVars {
		value, ok := env[name]
		if !ok {
			continue
		}
		if err := ValidateNoPlaceholder(name, value); err != nil {
			if production {
				return err
			}
			if warn != nil {
				warn(fmt.Sprintf("%v (would abort startup in production)", err))
			}
		}
	}
	return nil
}
