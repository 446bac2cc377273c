// Package errors defines the error taxonomy shared by the configuration
// store, the constraint policy and the token issuer. Every error kind here is
// a per-request failure; none is fatal to the process.
package errors

import (
	"errors"
	"fmt"
)

// AuthReason tags an AuthError with a machine-readable denial reason.
// Reasons are deliberately distinguishable so audit logs can separate
// misconfiguration from policy denial from abuse.
type AuthReason string

const (
	ReasonConfigNotFound      AuthReason = "config_not_found"
	ReasonConfigInactive      AuthReason = "config_inactive"
	ReasonIPNotTrusted        AuthReason = "ip_not_trusted"
	ReasonPrincipalNotAllowed AuthReason = "principal_not_allowed"
	ReasonProjectNotAllowed   AuthReason = "project_not_allowed"
	ReasonUsesLimitExceeded   AuthReason = "uses_limit_exceeded"
	ReasonTokenExpired        AuthReason = "token_expired"
	ReasonTokenRevoked        AuthReason = "token_revoked"
)

// ErrUsageLimitReached is the storage-level sentinel returned by token
// repositories when a mint reservation would push a config past its
// configured uses limit. The issuer maps it to ReasonUsesLimitExceeded.
var ErrUsageLimitReached = errors.New("usage limit reached")

// AuthError is a structured authentication denial. It is returned to callers
// verbatim; the reason is never collapsed into a generic "unauthorized".
type AuthError struct {
	Reason AuthReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// NewAuthError creates an AuthError with the given reason and optional detail.
func NewAuthError(reason AuthReason, detail string) *AuthError {
	return &AuthError{Reason: reason, Detail: detail}
}

// AsAuthError unwraps err into an *AuthError if it carries one.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ValidationError reports a malformed or missing required field. Records
// failing validation are never persisted.
type ValidationError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError signals a concurrent mutation on the same configuration key.
// It is safe to retry with backoff; it must never be swallowed into a stale
// success.
type ConflictError struct {
	Key string `json:"key"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent write in flight for %s", e.Key)
}

// NewConflict creates a ConflictError for the given serialization key.
func NewConflict(key string) *ConflictError {
	return &ConflictError{Key: key}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// NotFoundError reports an unknown owner, config or token.
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for the given resource kind and id.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
