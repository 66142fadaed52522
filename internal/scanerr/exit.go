package scanerr

import (
	"context"
	"errors"
)

// Process exit codes. Values are stable; calling scripts branch on them.
const (
	ExitOK          = 0
	ExitUnexpected  = 1
	ExitNotFound    = 2
	ExitPermission  = 3
	ExitIO          = 4
	ExitFileOther   = 5
	ExitCorrupt     = 6
	ExitTransport   = 7
	ExitRateLimited = 8
	ExitMalformed   = 9
	ExitForbidden   = 10
	ExitUnknown     = 11
)

// ExitCode maps err to the process exit code.
// A nil error and an operator cancellation both exit cleanly.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return ExitOK
	}
	se, ok := As(err)
	if !ok {
		return ExitUnexpected
	}
	switch se.Class {
	case ClassNotFound:
		return ExitNotFound
	case ClassPermission:
		return ExitPermission
	case ClassIO:
		return ExitIO
	case ClassCorrupt:
		return ExitCorrupt
	case ClassTransport:
		return ExitTransport
	case ClassRateLimited:
		return ExitRateLimited
	case ClassMalformed:
		return ExitMalformed
	case ClassForbidden:
		return ExitForbidden
	case ClassUnknown:
		return ExitUnknown
	default:
		if se.Kind == KindRemote {
			return ExitUnknown
		}
		return ExitFileOther
	}
}
