// Package errs provides unified, sum-typed error handling for the substrate
// core, grounded on the teacher's infrastructure/errors package but with
// kinds renamed to the vocabulary spec.md §7 defines.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. Callers branch on Kind, never on
// error string contents or Go type.
type Kind string

const (
	// Format (§4.1)
	KindMissingID         Kind = "missing_id"
	KindMissingHumanLayer Kind = "missing_human_layer"
	KindBufferTooSmall    Kind = "buffer_too_small"
	KindInvalidMagic      Kind = "invalid_magic"

	// Dedup & recursion (§4.6)
	KindDuplicateHashBlocked     Kind = "duplicate_hash_blocked"
	KindBridgeConfirmationBlocked Kind = "bridge_confirmation_blocked"
	KindRecursionLoopBlocked     Kind = "recursion_loop_blocked"
	KindNotDTUWorthy             Kind = "not_dtu_worthy"

	// Federation (§4.5)
	KindCannotDemote        Kind = "cannot_demote"
	KindLocationAlreadySet  Kind = "location_already_set"
	KindNationalNotFound    Kind = "national_not_found"
	KindCountryCodeExists   Kind = "country_code_exists"
	KindLensLimitExceeded   Kind = "lens_limit_exceeded"
	KindGateFailed          Kind = "gate_failed"

	// Query (§4.8)
	KindExhausted Kind = "exhausted"

	// Compliance (§4.9)
	KindComplianceCheckFailed Kind = "compliance_check_failed"

	// Rights (§4.4)
	KindNotAuthorized         Kind = "not_authorized"
	KindReviewAlreadyProcessed Kind = "review_already_processed"

	// General resource errors, reused across subsystems.
	KindNotFound      Kind = "not_found"
	KindAlreadyExists Kind = "already_exists"
	KindInvalidInput  Kind = "invalid_input"
	KindInternal      Kind = "internal"
)

// SubstrateError is a structured error carrying a Kind, a human message, and
// optional structured details (e.g. a quality-gate's required/actual pair).
type SubstrateError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface.
func (e *SubstrateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *SubstrateError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the same error for
// chaining.
func (e *SubstrateError) WithDetails(key string, value interface{}) *SubstrateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a SubstrateError of the given kind.
func New(kind Kind, message string) *SubstrateError {
	return &SubstrateError{Kind: kind, Message: message}
}

// Wrap creates a SubstrateError of the given kind wrapping an underlying
// error.
func Wrap(kind Kind, message string, err error) *SubstrateError {
	return &SubstrateError{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a SubstrateError of the given kind.
func Is(err error, kind Kind) bool {
	var se *SubstrateError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// GetKind extracts the Kind from an error chain, returning ("", false) if
// err is not a SubstrateError.
func GetKind(err error) (Kind, bool) {
	var se *SubstrateError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// Constructors mirroring the kinds above -- one per spec §7 entry, plus a
// handful of general-purpose resource errors reused across subsystems.

func MissingID() *SubstrateError {
	return New(KindMissingID, "dtu id is required")
}

func MissingHumanLayer() *SubstrateError {
	return New(KindMissingHumanLayer, "dtu requires a human layer")
}

func BufferTooSmall(got, want int) *SubstrateError {
	return New(KindBufferTooSmall, "encoded buffer is smaller than the header").
		WithDetails("got", got).WithDetails("want", want)
}

func InvalidMagic() *SubstrateError {
	return New(KindInvalidMagic, "buffer does not start with the CDTU magic bytes")
}

func DuplicateHashBlocked(hash string) *SubstrateError {
	return New(KindDuplicateHashBlocked, "raw event hash already committed this cycle").
		WithDetails("raw_event_hash", hash)
}

func BridgeConfirmationBlocked() *SubstrateError {
	return New(KindBridgeConfirmationBlocked, "event is itself a bridge confirmation")
}

func RecursionLoopBlocked(sourceDTUID string) *SubstrateError {
	return New(KindRecursionLoopBlocked, "source dtu is itself bridge-originated").
		WithDetails("source_dtu_id", sourceDTUID)
}

func NotDTUWorthy(eventType string) *SubstrateError {
	return New(KindNotDTUWorthy, "event type is not dtu-worthy").
		WithDetails("event_type", eventType)
}

func CannotDemote(from, to string) *SubstrateError {
	return New(KindCannotDemote, "federation tier cannot be demoted").
		WithDetails("from", from).WithDetails("to", to)
}

func LocationAlreadySet(field string) *SubstrateError {
	return New(KindLocationAlreadySet, "location field is immutable once set").
		WithDetails("field", field)
}

func NationalNotFound(id string) *SubstrateError {
	return New(KindNationalNotFound, "national not found").WithDetails("id", id)
}

func CountryCodeExists(code string) *SubstrateError {
	return New(KindCountryCodeExists, "country code already registered").
		WithDetails("country_code", code)
}

func LensLimitExceeded(subjectType string, limit int) *SubstrateError {
	return New(KindLensLimitExceeded, "lens subscription limit exceeded").
		WithDetails("subject_type", subjectType).WithDetails("limit", limit)
}

// GateFailure describes one failed quality-gate predicate.
type GateFailure struct {
	Gate     string      `json:"gate"`
	Required interface{} `json:"required"`
	Actual   interface{} `json:"actual"`
}

func GateFailed(tier string, failures []GateFailure) *SubstrateError {
	return New(KindGateFailed, "quality gate predicates failed").
		WithDetails("tier", tier).WithDetails("failures", failures)
}

func Exhausted(query string) *SubstrateError {
	return New(KindExhausted, "no tier answered the query").WithDetails("query", query)
}

func ComplianceCheckFailed(phase, check string) *SubstrateError {
	return New(KindComplianceCheckFailed, "compliance check failed").
		WithDetails("phase", phase).WithDetails("check", check)
}

func NotAuthorized(action string) *SubstrateError {
	return New(KindNotAuthorized, "not authorized").WithDetails("action", action)
}

func ReviewAlreadyProcessed(reviewID string) *SubstrateError {
	return New(KindReviewAlreadyProcessed, "dedup review already processed").
		WithDetails("review_id", reviewID)
}

func NotFound(resource, id string) *SubstrateError {
	return New(KindNotFound, "resource not found").
		WithDetails("resource", resource).WithDetails("id", id)
}

func AlreadyExists(resource, id string) *SubstrateError {
	return New(KindAlreadyExists, "resource already exists").
		WithDetails("resource", resource).WithDetails("id", id)
}

func InvalidInput(field, reason string) *SubstrateError {
	return New(KindInvalidInput, "invalid input").
		WithDetails("field", field).WithDetails("reason", reason)
}

func Internal(message string, err error) *SubstrateError {
	return Wrap(KindInternal, message, err)
}
