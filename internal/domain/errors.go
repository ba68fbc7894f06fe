/**
 * @description
 * Error taxonomy for the sync pipeline. The class of an error decides how
 * far it propagates: authentication errors always bubble up and flip the
 * connection status, everything else is contained at the smallest possible
 * scope (one record, one account).
 */

package domain

import (
	"errors"
	"fmt"
	"time"
)

// AuthenticationError means the provider rejected the stored credentials.
// No retry; the connection must be re-authenticated by the user.
type AuthenticationError struct {
	ProviderKind string
	Err          error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("provider %s rejected credentials: %v", e.ProviderKind, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RateLimitError means the provider is throttling us. RetryAfter is the
// minimum wait the provider asked for; callers back off at least that long
// and double on repeat.
type RateLimitError struct {
	ProviderKind string
	RetryAfter   time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %s rate limited, retry after %s", e.ProviderKind, e.RetryAfter)
}

// TransientError covers network failures, 5xx responses and malformed
// provider payloads. Treated per-account as "zero activities returned".
type TransientError struct {
	ProviderKind string
	Err          error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s transient failure: %v", e.ProviderKind, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError means a canonical record failed validation on write. The
// offending record is skipped; the rest of the batch continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsAuthentication reports whether err is authentication-class.
func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsRateLimit reports whether err is a provider throttle.
func IsRateLimit(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// IsTransient reports whether err should be treated as an empty fetch.
func IsTransient(err error) bool {
	var trErr *TransientError
	return errors.As(err, &trErr)
}
