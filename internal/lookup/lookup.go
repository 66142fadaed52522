// Package lookup talks to the remote reputation service.
package lookup

import (
	"context"

	"github.com/router-for-me/RepScan/internal/scanerr"
)

// Outcome tags a lookup response.
type Outcome int

const (
	// OutcomeFound carries a report; the only continuable outcome.
	OutcomeFound Outcome = iota
	// OutcomeRateLimited means the server's per-minute cap was already hit.
	OutcomeRateLimited
	// OutcomeMalformed means the server rejected the request shape.
	OutcomeMalformed
	// OutcomeForbidden means the key is missing or invalid.
	OutcomeForbidden
	// OutcomeOther is any response not listed above.
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found-with-report"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeMalformed:
		return "malformed-request"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "other"
	}
}

// Response is a classified lookup result.
type Response struct {
	Outcome    Outcome
	StatusCode int
	// Result is the structured result as JSON with the server's key order.
	Result []byte
}

// Err returns the fatal error for a non-found response, nil otherwise.
func (r Response) Err() error {
	switch r.Outcome {
	case OutcomeFound:
		return nil
	case OutcomeRateLimited:
		return scanerr.Remote(scanerr.ClassRateLimited, "lookup", nil)
	case OutcomeMalformed:
		return scanerr.Remote(scanerr.ClassMalformed, "lookup", nil)
	case OutcomeForbidden:
		return scanerr.Remote(scanerr.ClassForbidden, "lookup", nil)
	default:
		return scanerr.Remote(scanerr.ClassUnknown, "lookup", nil)
	}
}

// Client looks up a single content fingerprint.
type Client interface {
	Lookup(ctx context.Context, fingerprint string) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, fingerprint string) (Response, error)

// Lookup calls f.
func (f ClientFunc) Lookup(ctx context.Context, fingerprint string) (Response, error) {
	return f(ctx, fingerprint)
}
