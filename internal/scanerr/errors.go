// Package scanerr defines the failure taxonomy of a scan run and the stable
// process exit codes derived from it.
package scanerr

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind identifies which part of the run failed.
type Kind int

const (
	// KindPersistence covers the counter and window records.
	KindPersistence Kind = iota + 1
	// KindRemote covers the reputation lookup service.
	KindRemote
	// KindIO covers the report output.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindPersistence:
		return "persistence"
	case KindRemote:
		return "remote"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Class refines a Kind into the condition calling scripts branch on.
type Class int

const (
	ClassOther Class = iota
	ClassNotFound
	ClassPermission
	ClassIO
	ClassCorrupt
	ClassTransport
	ClassRateLimited
	ClassMalformed
	ClassForbidden
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not-found"
	case ClassPermission:
		return "permission"
	case ClassIO:
		return "io"
	case ClassCorrupt:
		return "corrupt"
	case ClassTransport:
		return "transport"
	case ClassRateLimited:
		return "rate-limited"
	case ClassMalformed:
		return "malformed-request"
	case ClassForbidden:
		return "forbidden"
	case ClassUnknown:
		return "unrecognized-response"
	default:
		return "other"
	}
}

// Error is a fatal scan failure. None of them are retried.
type Error struct {
	Kind  Kind
	Class Class
	// Op names the action that failed, e.g. "load counter" or "append report".
	Op string
	// Path is the file involved, empty for remote failures.
	Path string
	Err  error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String() + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += " (" + e.Class.String() + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Persistence builds a persistence error, classifying err by filesystem kind.
func Persistence(op, path string, err error) *Error {
	return &Error{Kind: KindPersistence, Class: ClassifyFS(err), Op: op, Path: path, Err: err}
}

// Corrupt builds a persistence error for a record that exists but cannot be parsed.
func Corrupt(op, path string, err error) *Error {
	return &Error{Kind: KindPersistence, Class: ClassCorrupt, Op: op, Path: path, Err: err}
}

// IO builds a report output error, classifying err by filesystem kind.
func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Class: ClassifyFS(err), Op: op, Path: path, Err: err}
}

// Remote builds a remote lookup error of the given class.
func Remote(class Class, op string, err error) *Error {
	return &Error{Kind: KindRemote, Class: class, Op: op, Err: err}
}

// ClassifyFS maps a filesystem error to not-found, permission, io or other.
func ClassifyFS(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, fs.ErrNotExist):
		return ClassNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EACCES):
		return ClassPermission
	case errors.Is(err, syscall.EIO):
		return ClassIO
	default:
		return ClassOther
	}
}

// As extracts the scan error from err.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) && se != nil {
		return se, true
	}
	return nil, false
}

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool { return isKind(err, KindPersistence) }

// IsRemote reports whether err is a remote lookup failure.
func IsRemote(err error) bool { return isKind(err, KindRemote) }

// IsIO reports whether err is a report output failure.
func IsIO(err error) bool { return isKind(err, KindIO) }

func isKind(err error, kind Kind) bool {
	se, ok := As(err)
	return ok && se.Kind == kind
}

// Describe returns the short console diagnostic for err.
func Describe(err error) string {
	se, ok := As(err)
	if !ok {
		if err == nil {
			return ""
		}
		return fmt.Sprintf("Unexpected error occurred - %v", err)
	}
	switch se.Class {
	case ClassNotFound:
		return fmt.Sprintf("%s does not exist", se.Path)
	case ClassPermission:
		return fmt.Sprintf("%s does not have permissions to %s, if file exists confirm it is closed", se.Path, se.Op)
	case ClassIO:
		return fmt.Sprintf("IO error occurred during %s on %s", se.Op, se.Path)
	case ClassCorrupt:
		return fmt.Sprintf("Value error: stored data in %s could not be read - %v", se.Path, se.Err)
	case ClassTransport:
		return fmt.Sprintf("API error occurred - %v", se.Err)
	case ClassRateLimited:
		return "Max API Error: API calls per minute maxed out, wait 60 seconds and try again"
	case ClassMalformed:
		return "Request Error: Invalid API request detected, check request formatting"
	case ClassForbidden:
		return "Forbidden Error: Unable to access API, confirm key exists and is valid"
	case ClassUnknown:
		return "Unknown response code occurred"
	default:
		if se.Path != "" {
			return fmt.Sprintf("Unexpected file operation occurred accessing %s: %v", se.Path, se.Err)
		}
		return fmt.Sprintf("Unexpected error occurred - %v", se.Err)
	}
}
