// Package natalerr defines the structured error values surfaced by the
// natal computation core. Every failure carries a stable code, a short
// human-readable message and a details map; nothing else leaks out.
package natalerr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stable error codes. Collaborators branch on these, never on messages.
const (
	CodeInvalidBirthInput            = "invalid_birth_input"
	CodeInvalidTimezone              = "invalid_timezone"
	CodeMissingTimezone              = "missing_timezone"
	CodeMissingCoordinates           = "missing_coordinates"
	CodeAmbiguousLocalTime           = "ambiguous_local_time"
	CodeNonexistentLocalTime         = "nonexistent_local_time"
	CodeMissingBirthTime             = "missing_birth_time"
	CodeMissingBirthCoordinates      = "missing_birth_coordinates"
	CodeInvalidZodiac                = "invalid_zodiac"
	CodeInvalidFrame                 = "invalid_frame"
	CodeInvalidAyanamsa              = "invalid_ayanamsa"
	CodeMissingAyanamsa              = "missing_ayanamsa"
	CodeUnsupportedHouseSystem       = "unsupported_house_system"
	CodeAccurateModeRequired         = "accurate_mode_required"
	CodeEngineOptionUnsupported      = "natal_engine_option_unsupported"
	CodeEngineOverrideForbidden      = "natal_engine_override_forbidden"
	CodeInvalidReferenceData         = "invalid_reference_data"
	CodeReferenceVersionNotFound     = "reference_version_not_found"
	CodeInconsistentNatalResult      = "inconsistent_natal_result"
	CodeEphemerisDataMissing         = "ephemeris_data_missing"
	CodeSwissEphInitFailed           = "swisseph_init_failed"
	CodeHousesCalcFailed             = "houses_calc_failed"
	CodeNatalGenerationTimeout       = "natal_generation_timeout"
	CodeNatalEngineUnavailable       = "natal_engine_unavailable"
)

// Error is the canonical error value of the core.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`

	cause error
}

// New builds an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetail attaches a single detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges detail entries.
func (e *Error) WithDetails(details map[string]any) *Error {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// AsRetryable marks the error as safe to retry.
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// Wrap records an underlying cause. The cause is reachable via errors.Is /
// errors.As but its text is never included in Message.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two core errors by code so that
// errors.Is(err, natalerr.New(code, "")) works in callers and tests.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the stable code from err, or "" when err is not a core
// error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a core error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

var (
	pathPattern  = regexp.MustCompile(`(?:[A-Za-z]:)?(?:/[\w.\-]+){2,}`)
	stackPattern = regexp.MustCompile(`goroutine \d+ \[[^\]]*\]:`)
)

// Scrub removes filesystem paths and stack fragments from a backend
// message before it may appear in an error detail.
func Scrub(message string) string {
	message = stackPattern.ReplaceAllString(message, "")
	message = pathPattern.ReplaceAllString(message, "<path>")
	return strings.TrimSpace(message)
}
