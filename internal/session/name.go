package session

import (
	"os"
	"regexp"

	"github.com/matheus3301/waconsole/internal/config"
	"github.com/matheus3301/waconsole/internal/domain"
)

// SessionEnv selects the session when no flag is given.
const SessionEnv = "WACONSOLE_SESSION"

// DefaultSessionName is used when neither flag, environment, nor config
// names a session.
const DefaultSessionName = "main"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Resolve picks the session name: the flag value, then $WACONSOLE_SESSION,
// then default_session from config.toml, then "main". An unreadable config
// file is ignored here; the daemon reports it when it loads the file.
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(SessionEnv); env != "" {
		return env
	}
	if cfg, err := config.LoadOrDefault(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// ValidateName reports whether name is usable as a session directory:
// lowercase letters, digits, '-' and '_', starting with a letter or digit.
func ValidateName(name string) error {
	if namePattern.MatchString(name) {
		return nil
	}
	return &domain.ValidationError{
		Fields: []string{"session"},
		Reason: "use 1-64 lowercase letters, digits, '-' or '_', starting with a letter or digit",
	}
}
