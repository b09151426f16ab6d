package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. All components MUST use these constants
// instead of hardcoded strings so run reports and logs stay greppable.
const (
	// Transport resolution and delivery
	ErrCodeTransportUnsupported ErrorCode = "transport_unsupported"
	ErrCodeTransportSendFailed  ErrorCode = "transport_send_failed"

	// Dispatch pipeline
	ErrCodePageInvalid     ErrorCode = "dispatch_page_invalid"
	ErrCodeNoRecipients    ErrorCode = "dispatch_no_recipients"
	ErrCodeMembershipQuery ErrorCode = "dispatch_membership_query_failed"
	ErrCodeDispatchSkipped ErrorCode = "dispatch_skipped"
	ErrCodeRenderFailed    ErrorCode = "dispatch_render_failed"
	ErrCodeComposeFailed   ErrorCode = "dispatch_compose_failed"

	// Tracking
	ErrCodeTokenMalformed ErrorCode = "tracking_token_malformed"

	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBadRequest   ErrorCode = "validation_bad_request"

	// Auth (401/403)
	ErrCodeAuthRequired           ErrorCode = "auth_required"
	ErrCodePermissionInsufficient ErrorCode = "permission_insufficient"

	// Not found (404)
	ErrCodeNotFoundRule ErrorCode = "not_found_notification_rule"

	// Internal/upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamPlatform    ErrorCode = "upstream_platform_unavailable"
	ErrCodeUpstreamMailer      ErrorCode = "upstream_mail_provider_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code for the
// events server. Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), s == string(ErrCodeTokenMalformed):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeAuthRequired):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the engine.
// All domain errors should be expressed as AppError to enable consistent
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
