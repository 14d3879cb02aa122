package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigKind names a configuration record.
type ConfigKind string

const (
	KindMessaging ConfigKind = "messaging-api-config"
	KindDatabase  ConfigKind = "database-config"
)

// ErrSyncInProgress signals that a database sync was requested while another
// one was running. The request was dropped, not queued.
var ErrSyncInProgress = errors.New("database sync already in progress")

// NotConfiguredError is returned when a required configuration record is
// missing or incomplete.
type NotConfiguredError struct {
	Kind ConfigKind
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Kind)
}

// ValidationError reports invalid caller input. Fields lists the offending
// field names; Reason is set for non-field problems.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Fields) > 0 && e.Reason != "":
		return fmt.Sprintf("validation failed: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
	case len(e.Fields) > 0:
		return "validation failed: missing required fields: " + strings.Join(e.Fields, ", ")
	default:
		return "validation failed: " + e.Reason
	}
}

// RemoteError wraps a transport or API failure.
type RemoteError struct {
	Op    string
	Cause error
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("remote error: %v", e.Cause)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// Remote wraps err as a RemoteError for op. Errors that already belong to
// the taxonomy pass through unchanged.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		re *RemoteError
		nc *NotConfiguredError
		ve *ValidationError
	)
	if errors.As(err, &re) || errors.As(err, &nc) || errors.As(err, &ve) {
		return err
	}
	return &RemoteError{Op: op, Cause: err}
}

// IsNotConfigured reports whether err is a NotConfiguredError.
func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote reports whether err is a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
