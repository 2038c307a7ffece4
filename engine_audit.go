package goSession

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLogoutManual          = "logout_manual"
	auditEventSessionLocked         = "session_locked"
	auditEventSessionRestored       = "session_restored"
	auditEventSessionExpired        = "session_expired"
	auditEventUnlockSuccess         = "unlock_success"
	auditEventUnlockFailure         = "unlock_failure"
	auditEventTokenRejected         = "token_rejected"
	auditEventProfileUpdated        = "profile_updated"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
)

// AuditErrorCode is the stable error classification carried by audit
// events. It never contains server-supplied text.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrConnection         AuditErrorCode = "connection_failed"
	auditErrTokenRejected      AuditErrorCode = "token_rejected"
	auditErrTokenMissing       AuditErrorCode = "token_missing"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrRequestRejected    AuditErrorCode = "request_rejected"
	auditErrManualLogout       AuditErrorCode = "manual_logout"
	auditErrVerifierMissing    AuditErrorCode = "verifier_missing"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnlockFailed       AuditErrorCode = "unlock_failed"
	auditErrPasswordMismatch   AuditErrorCode = "password_mismatch"
	auditErrSessionChanged     AuditErrorCode = "session_changed"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Status:    e.Status().String(),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrOffline):
		return auditErrConnection
	case errors.Is(err, ErrTokenRejected):
		return auditErrTokenRejected
	case errors.Is(err, ErrTokenMissing):
		return auditErrTokenMissing
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrNotLocked), errors.Is(err, ErrNoCachedSession):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrRequestRejected):
		return auditErrRequestRejected
	case errors.Is(err, ErrManualLogout):
		return auditErrManualLogout
	case errors.Is(err, ErrVerifierMissing):
		return auditErrVerifierMissing
	case errors.Is(err, ErrUnlockRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUnlockFailed):
		return auditErrUnlockFailed
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrSessionChanged):
		return auditErrSessionChanged
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}
