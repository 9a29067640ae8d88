// Package apperr defines the error taxonomy returned by the market services.
// Every error carries a stable machine-readable code so clients can branch on
// cause instead of parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups codes by how a caller should react
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindValidationFailed    Kind = "validation_failed"
	KindInsufficientHistory Kind = "insufficient_history"
	KindPersistenceFailure  Kind = "persistence_failure"
	KindForbidden           Kind = "forbidden"
	KindBadParameter        Kind = "bad_parameter"
	KindUnauthenticated     Kind = "unauthenticated"
	KindRateLimited         Kind = "rate_limited"
)

// Stable error codes
const (
	CodeUnfinishedSessionsExist     = "unfinished_sessions_exist"
	CodeMultipleOpenSessions        = "multiple_open_sessions"
	CodeNoSuchSession               = "no_such_session"
	CodeInvalidSessionTransition    = "invalid_session_transition"
	CodeSessionNotOpenForChallenges = "session_not_open_for_challenges"
	CodeResourceNotRegistered       = "resource_not_registered"
	CodeChallengeAlreadyExists      = "challenge_already_exists"
	CodeNotEnoughHistoricalData     = "not_enough_historical_data"
	CodeNotRegisteredToUser         = "not_registered_to_user"
	CodeChallengeNotRegistered      = "challenge_not_registered"
	CodeChallengeNotOpen            = "challenge_not_open"
	CodeChallengeNotRunning         = "challenge_not_running"
	CodeMissingQ50Forecasts         = "missing_q50_forecasts"
	CodeIncompleteSubmission        = "incomplete_submission"
	CodeIncorrectSubmission         = "incorrect_submission"
	CodeNotEnoughDataToSubmit       = "not_enough_data_to_submit"
	CodeSubmissionAlreadyExists     = "submission_already_exists"
	CodeFailedToInsertSubmission    = "failed_to_insert_submission"
	CodeFailedToInsertEnsemble      = "failed_to_insert_ensemble"
	CodeEnsembleNotFound            = "ensemble_not_found"
	CodeEnsembleWeightsAlreadySet   = "ensemble_weights_already_set"
	CodeSubmissionNotFound          = "submission_not_found"
	CodeScoresAlreadyPublished      = "scores_already_published"
	CodeFailedToPublishScores       = "failed_to_publish_scores"
	CodeInvalidParameter            = "invalid_parameter"
	CodePermissionDenied            = "permission_denied"
	CodeRateLimited                 = "rate_limited"
	CodeInvalidToken                = "invalid_token"
	CodeInternal                    = "internal_error"
)

// Error is a classified service error
type Error struct {
	Kind    Kind        `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error without details
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NewWithDetails creates an Error carrying structured details
func NewWithDetails(kind Kind, code, message string, details interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

// NotFound creates a NotFound error
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Conflict creates a Conflict error
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Forbidden creates a Forbidden error
func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

// InsufficientHistory creates an InsufficientHistory error
func InsufficientHistory(code, message string, details interface{}) *Error {
	return NewWithDetails(KindInsufficientHistory, code, message, details)
}

// Persistence creates a PersistenceFailure error. The cause is not attached;
// callers log it before returning.
func Persistence(code, message string) *Error {
	return New(KindPersistenceFailure, code, message)
}

// InvalidParameter reports a malformed filter or body field
func InvalidParameter(field, message string) *Error {
	return NewWithDetails(KindBadParameter, CodeInvalidParameter, message, map[string]string{"field": field})
}

// PermissionDenied reports a caller lacking the required capability
func PermissionDenied(message string) *Error {
	return Forbidden(CodePermissionDenied, message)
}

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries kind
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HasCode reports whether err carries code
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// HTTPStatus maps a kind to the transport status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidationFailed, KindBadParameter:
		return http.StatusBadRequest
	case KindInsufficientHistory:
		return http.StatusPreconditionFailed
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the HTTP status for any error; unclassified errors are 500
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return HTTPStatus(e.Kind)
	}
	return http.StatusInternalServerError
}
