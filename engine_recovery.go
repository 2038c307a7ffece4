package goSession

import (
	"context"
	"strings"
)

// ForgotPassword asks the identity server to start out-of-band recovery
// for email.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.recoveryReady(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrCredentialsRequired
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Identity.RecoveryTimeout)
	defer cancel()
	err := e.identity.ForgotPassword(ctx, email)
	e.metricInc(MetricPasswordRecoveryRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, err == nil, "", "", err, nil)
	return err
}

// VerifyResetToken checks a recovery token before the new password is
// collected.
func (e *Engine) VerifyResetToken(ctx context.Context, resetToken string) error {
	if err := e.recoveryReady(); err != nil {
		return err
	}
	if resetToken == "" {
		return ErrTokenMissing
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Identity.RecoveryTimeout)
	defer cancel()
	return e.identity.VerifyResetToken(ctx, resetToken)
}

// ResetPassword completes recovery. The local unlock verifier is removed
// because it was derived from the replaced password.
func (e *Engine) ResetPassword(ctx context.Context, reset PasswordReset) error {
	if err := e.recoveryReady(); err != nil {
		return err
	}
	if reset.Token == "" {
		return ErrTokenMissing
	}
	if reset.Password == "" {
		return ErrCredentialsRequired
	}
	if reset.Password != reset.Confirm {
		return ErrPasswordMismatch
	}

	rctx, cancel := context.WithTimeout(ctx, e.config.Identity.RecoveryTimeout)
	err := e.identity.ResetPassword(rctx, reset)
	cancel()
	e.emitAudit(ctx, auditEventPasswordResetConfirm, err == nil, "", "", err, nil)
	if err != nil {
		return err
	}

	e.persistMu.Lock()
	if rerr := e.creds.RemoveVerifier(ctx); rerr != nil {
		e.logger.Warn("unlock verifier not removed after reset", "error", rerr)
	}
	e.persistMu.Unlock()
	e.metricInc(MetricPasswordRecoveryComplete)
	return nil
}

func (e *Engine) recoveryReady() error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.identity == nil {
		return ErrIdentityUnavailable
	}
	return nil
}
