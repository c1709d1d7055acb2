package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotLoggedIn is returned by scrape operations invoked before a
// successful login.
var ErrNotLoggedIn = errors.New("not logged in")

// ValidationError reports invalid user-supplied run parameters.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LoginError is returned when all login attempts against a service failed.
type LoginError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s login failed after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// LoginTimeoutError is returned when login attempts were exhausted and the
// last failure was a timeout.
type LoginTimeoutError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("%s login timed out after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *LoginTimeoutError) Unwrap() error { return e.Err }

// ProxyAuthError reports that the authenticated proxy could not be used.
// Proxy failures are never retried.
type ProxyAuthError struct {
	Err error
}

func (e *ProxyAuthError) Error() string {
	return fmt.Sprintf("proxy verification failed: %v", e.Err)
}

func (e *ProxyAuthError) Unwrap() error { return e.Err }

// ConnectionError reports that fetching a page failed after all retries.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// isTimeout reports whether an error looks like a navigation or wait
// timeout. Playwright surfaces these as text, so this matches on message.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

const dateLayout = "2006-01-02"

// ValidateDateRange checks YYYY-MM-DD formatting and ordering of a run's
// date window.
func ValidateDateRange(start, end string) error {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return &ValidationError{Field: "start date", Reason: fmt.Sprintf("%q is not in YYYY-MM-DD format", start)}
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return &ValidationError{Field: "end date", Reason: fmt.Sprintf("%q is not in YYYY-MM-DD format", end)}
	}
	if startDate.After(endDate) {
		return &ValidationError{Field: "date range", Reason: fmt.Sprintf("start %s is after end %s", start, end)}
	}
	return nil
}

// ValidateMinPrice checks the seller aggregate price floor.
func ValidateMinPrice(price int) error {
	if price < 0 {
		return &ValidationError{Field: "min price", Reason: fmt.Sprintf("must not be negative, got %d", price)}
	}
	return nil
}
