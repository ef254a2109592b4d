package sqlserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Class is the outcome category of a handshake
type Class int

const (
	// ClassAccessible means login and query succeeded
	ClassAccessible Class = iota
	// ClassAuthFailed means the server rejected the credentials
	ClassAuthFailed
	// ClassDatabaseUnavailable means login worked but the database could not be opened
	ClassDatabaseUnavailable
	// ClassTimeout means the server did not answer in time
	ClassTimeout
	// ClassRefused means nothing accepted the connection
	ClassRefused
	// ClassOther covers protocol, DNS and unexpected failures
	ClassOther
)

// String returns a human-readable name for the class
func (c Class) String() string {
	switch c {
	case ClassAccessible:
		return "Accessible"
	case ClassAuthFailed:
		return "Authentication Failed"
	case ClassDatabaseUnavailable:
		return "Database Unavailable"
	case ClassTimeout:
		return "Timeout"
	case ClassRefused:
		return "Connection Refused"
	case ClassOther:
		return "Error"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}

// Recordable reports whether a failure of this class still proves a server
// is present and should be listed as inaccessible.
func (c Class) Recordable() bool {
	return c == ClassAuthFailed || c == ClassDatabaseUnavailable
}

// SQL Server error numbers
var (
	authErrorNumbers = map[int32]bool{
		18452: true, // login from untrusted domain
		18456: true, // login failed for user
	}
	unavailableErrorNumbers = map[int32]bool{
		4060:  true, // cannot open database requested by the login
		4064:  true, // cannot open user default database
		40613: true, // database not currently available
	}
)

// sqlError is satisfied by driver errors that carry a server error number.
type sqlError interface {
	SQLErrorNumber() int32
}

// ProbeError is a classified handshake failure
type ProbeError struct {
	Class   Class  // Outcome category
	Number  int32  // SQL Server error number, 0 when not a server error
	Target  string // Connection descriptor
	Message string // Short human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Classify maps a handshake error onto a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassAccessible
	}

	var se sqlError
	if errors.As(err, &se) {
		n := se.SQLErrorNumber()
		switch {
		case authErrorNumbers[n]:
			return ClassAuthFailed
		case unavailableErrorNumbers[n]:
			return ClassDatabaseUnavailable
		}
	}

	// Login errors are not always surfaced as typed server errors
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Login failed for user"),
		strings.Contains(msg, "untrusted domain"):
		return ClassAuthFailed
	case strings.Contains(msg, "Cannot open database"),
		strings.Contains(msg, "Cannot open user default database"):
		return ClassDatabaseUnavailable
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassRefused
	}
	return ClassOther
}

// NewProbeError classifies err for target. Returns nil for a nil error.
func NewProbeError(target Target, err error) *ProbeError {
	if err == nil {
		return nil
	}
	pe := &ProbeError{
		Class:  Classify(err),
		Target: target.Descriptor(),
		Err:    err,
	}
	var se sqlError
	if errors.As(err, &se) {
		pe.Number = se.SQLErrorNumber()
	}
	pe.Message = shortMessage(pe)
	return pe
}

func shortMessage(pe *ProbeError) string {
	switch pe.Class {
	case ClassAuthFailed:
		return "Login failed - check credentials"
	case ClassDatabaseUnavailable:
		return "Login succeeded but the database is unavailable"
	case ClassTimeout:
		return "Server did not respond in time"
	case ClassRefused:
		return "Server refused the connection"
	default:
		return "Handshake failed"
	}
}

// IsRecordable reports whether err is a classified failure that should still
// produce an inaccessible instance record.
func IsRecordable(err error) bool {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Class.Recordable()
	}
	return false
}
