// Package referrors defines the error kinds raised by the core components
// of the referral registration service (spec §7) and maps them onto
// fhirshared.OperationOutcome bodies and HTTP status codes at the
// northbound boundary.
package referrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/minvws/nvi-registration-service/internal/platform/fhirshared"
)

// Kind identifies one of the error categories the core can raise.
type Kind string

const (
	KindTokenFetch        Kind = "token_fetch_error"
	KindPseudonym         Kind = "pseudonym_error"
	KindNvi               Kind = "nvi_error"
	KindMetadata          Kind = "metadata_error"
	KindInvalidResource   Kind = "invalid_resource"
	KindDuplicateReferral Kind = "duplicate_referral"
	KindConfiguration     Kind = "configuration_error"
	KindUnhealthyUpstream Kind = "unhealthy_upstream"
)

// Error is a typed error carrying one of the Kind values above plus the
// underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// HTTPStatus maps a Kind to the status code spec §6/§7 prescribes for
// the northbound boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidResource:
		return http.StatusBadRequest
	case KindDuplicateReferral:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindUnhealthyUpstream:
		return http.StatusInternalServerError
	case KindTokenFetch, KindPseudonym, KindNvi, KindMetadata:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Outcome renders err as an OperationOutcome. Non-*Error values are
// treated as unclassified exceptions.
func Outcome(err error) *fhirshared.OperationOutcome {
	var re *Error
	if !errors.As(err, &re) {
		return fhirshared.ErrorOutcome(err.Error())
	}

	switch re.Kind {
	case KindDuplicateReferral:
		return fhirshared.DuplicateOutcome(re.Message)
	case KindInvalidResource:
		return fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, re.Message)
	case KindUnhealthyUpstream:
		return fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeProcessing, re.Error())
	default:
		return fhirshared.ErrorOutcome(re.Error())
	}
}
