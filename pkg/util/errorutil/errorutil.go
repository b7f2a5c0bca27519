package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/platform"
)

// Error codes rendered in API responses.
const (
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeAlreadyAssigned  = "ALREADY_ASSIGNED"
	CodeBackupFull       = "BACKUP_FULL"
	CodeNotReady         = "NOT_READY"
	CodeGroupClosed      = "GROUP_CLOSED"
	CodeDeliveryFailure  = "DELIVERY_FAILURE"
	CodeRenderTargetLost = "RENDER_TARGET_LOST"
	CodeGatewayOffline   = "GATEWAY_OFFLINE"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewGatewayOffline() error {
	return &DomainError{
		Code:       CodeGatewayOffline,
		Message:    "no chat adapter connected",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        platform.ErrOffline,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// sentinelErrors maps package sentinels to their API representation.
var sentinelErrors = []struct {
	err     error
	code    string
	message string
	status  int
}{
	{group.ErrAlreadyAssigned, CodeAlreadyAssigned, "identity already holds a role in this group", http.StatusConflict},
	{group.ErrBackupFull, CodeBackupFull, "backup queue is full", http.StatusConflict},
	{group.ErrNotFound, CodeNotFound, "group or member not found", http.StatusNotFound},
	{group.ErrUnauthorized, CodeUnauthorized, "only a primary member may acknowledge", http.StatusUnauthorized},
	{group.ErrNotReady, CodeNotReady, "group is not complete", http.StatusConflict},
	{group.ErrClosed, CodeGroupClosed, "group is closed", http.StatusGone},
	{group.ErrLaneStopped, CodeGroupClosed, "group is closed", http.StatusGone},
	{group.ErrUnknownRole, CodeValidation, "unknown role", http.StatusBadRequest},
	{group.ErrInvalidIdentity, CodeValidation, "identity is required", http.StatusBadRequest},
	{group.ErrDuplicateGroup, CodeConflict, "group already registered", http.StatusConflict},
	{group.ErrRegistryClosed, CodeGatewayOffline, "coordinator is shutting down", http.StatusServiceUnavailable},
	{platform.ErrDeliveryFailure, CodeDeliveryFailure, "notification could not be delivered", http.StatusBadGateway},
	{platform.ErrRenderTargetLost, CodeRenderTargetLost, "group message could not be rendered", http.StatusBadGateway},
	{platform.ErrOffline, CodeGatewayOffline, "no chat adapter connected", http.StatusServiceUnavailable},
	{pgx.ErrNoRows, CodeNotFound, "resource not found", http.StatusNotFound},
	{gorm.ErrRecordNotFound, CodeNotFound, "resource not found", http.StatusNotFound},
	{context.DeadlineExceeded, CodeTimeout, "request timed out", http.StatusGatewayTimeout},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			return &DomainError{Code: s.code, Message: s.message, HTTPStatus: s.status, Err: err}
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts err to a DomainError, keeping nil as nil.
func MapError(err error) error {
	if de := ToDomainError(err); de != nil {
		return de
	}
	return nil
}
