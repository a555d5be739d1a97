package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups error codes into the rejection classes reported by the
// dispatch pipeline.
type Category string

const (
	CategoryMalformedInput       Category = "malformed_input"
	CategoryVerification         Category = "verification_failure"
	CategoryKeyFetchTransient    Category = "key_fetch_transient"
	CategoryNoHandlerMatched     Category = "no_handler_matched"
	CategoryInternal             Category = "internal"
	CategoryServiceUnavailable   Category = "service_unavailable"
	CategoryRequestNotAcceptable Category = "request_not_acceptable"
)

var (
	ErrMalformedJSON     = NewError("MALFORMED_JSON", "payload is not valid JSON", http.StatusBadRequest).in(CategoryMalformedInput)
	ErrMalformedEnvelope = NewError("MALFORMED_ENVELOPE", "signed envelope must have exactly three segments", http.StatusBadRequest).in(CategoryMalformedInput)

	ErrMissingKeyID       = NewError("MISSING_KEY_ID", "envelope header has no key id", http.StatusUnauthorized).in(CategoryVerification)
	ErrInvalidSignature   = NewError("INVALID_SIGNATURE", "envelope signature is invalid", http.StatusUnauthorized).in(CategoryVerification)
	ErrExpiredOrMalformed = NewError("EXPIRED_OR_MALFORMED_TOKEN", "envelope token is expired or structurally invalid", http.StatusUnauthorized).in(CategoryVerification)
	ErrKeyNotFound        = NewError("KEY_NOT_FOUND", "signing key not present in published key set", http.StatusUnauthorized).in(CategoryVerification)
	ErrVerificationFailed = NewError("VERIFICATION_FAILED", "envelope verification failed", http.StatusUnauthorized).in(CategoryVerification)
	ErrUnsupportedShape   = NewError("UNSUPPORTED_SHAPE", "payload shape is not recognized by this platform", http.StatusBadRequest).in(CategoryMalformedInput)
	ErrSignatureRequired  = NewError("SIGNATURE_REQUIRED", "platform requires a signed envelope", http.StatusUnauthorized).in(CategoryVerification)
	ErrKeyFetchFailed     = NewError("KEY_FETCH_FAILED", "failed to fetch published signing keys", http.StatusServiceUnavailable).in(CategoryKeyFetchTransient)
	ErrNoHandlerMatched   = NewError("NO_HANDLER_MATCHED", "no registered platform accepted the payload", http.StatusBadRequest).in(CategoryNoHandlerMatched).AsFatal()
	ErrUnknownPlatform    = NewError("UNKNOWN_PLATFORM", "platform is not registered", http.StatusNotFound).in(CategoryNoHandlerMatched)
	ErrPayloadTooLarge    = NewError("PAYLOAD_TOO_LARGE", "request body exceeds the configured limit", http.StatusRequestEntityTooLarge).in(CategoryRequestNotAcceptable)

	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest).in(CategoryMalformedInput)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError).in(CategoryInternal)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout).in(CategoryInternal)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable).in(CategoryServiceUnavailable)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Category  Category
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) in(category Category) *Error {
	e.Category = category
	return e
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinel values keep
// matching after WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
	}
	switch e.Category {
	case CategoryKeyFetchTransient, CategoryServiceUnavailable:
		return true
	}
	return false
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// Code returns the code of the outermost *Error in the chain, or
// INTERNAL_ERROR for foreign errors.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}

// CategoryOf returns the category of the outermost *Error in the chain.
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Category != "" {
		return appErr.Category
	}
	return CategoryInternal
}

// ReasonCode returns the most specific code in the chain. A
// VERIFICATION_FAILED wrapping KEY_NOT_FOUND reports KEY_NOT_FOUND.
func ReasonCode(err error) string {
	code := ""
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			break
		}
		code = appErr.Code
		// A joined cause has no single reason.
		if _, joined := appErr.Cause.(interface{ Unwrap() []error }); joined {
			break
		}
		err = appErr.Cause
	}
	if code == "" {
		return ErrInternal.Code
	}
	return code
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
		"reason":     ReasonCode(appErr),
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
