package sessionkit

import (
	"context"

	"github.com/sessionkit/sessionkit/internal/action"
	"github.com/sessionkit/sessionkit/transport"
)

// ResetPassword asks the backend to mail a password-reset link. It never
// requires an established session.
func (c *Client) ResetPassword(ctx context.Context, email string, opts *ActionOptions) (ActionResult, error) {
	var actionOpts ActionOptions
	if opts != nil {
		actionOpts = *opts
	}
	return c.runAction(ctx, action.KindResetPassword, false, MetricPasswordResetRequested,
		func(ctx context.Context, _ string) *transport.APIError {
			return c.backend.ResetPassword(ctx, email, actionOpts)
		})
}

// ChangePassword sets a new password for the signed-in user. The live access
// token is read at request time, so a refresh landing between the call and
// the request is picked up rather than raced.
func (c *Client) ChangePassword(ctx context.Context, newPassword string) (ActionResult, error) {
	return c.runAction(ctx, action.KindChangePassword, true, MetricPasswordChanged,
		func(ctx context.Context, accessToken string) *transport.APIError {
			return c.backend.ChangePassword(ctx, accessToken, newPassword)
		})
}

// ChangeEmail starts an email change for the signed-in user. The backend
// confirms the new address out of band; the session itself is unchanged until
// then.
func (c *Client) ChangeEmail(ctx context.Context, newEmail string, opts *ActionOptions) (ActionResult, error) {
	var actionOpts ActionOptions
	if opts != nil {
		actionOpts = *opts
	}
	return c.runAction(ctx, action.KindChangeEmail, true, MetricEmailChangeRequested,
		func(ctx context.Context, accessToken string) *transport.APIError {
			return c.backend.ChangeEmail(ctx, accessToken, newEmail, actionOpts)
		})
}

// SendVerificationEmail re-sends the account verification mail for an address
// that signed up but has not verified yet.
func (c *Client) SendVerificationEmail(ctx context.Context, email string, opts *ActionOptions) (ActionResult, error) {
	var actionOpts ActionOptions
	if opts != nil {
		actionOpts = *opts
	}
	return c.runAction(ctx, action.KindSendVerificationEmail, false, MetricVerificationEmailSent,
		func(ctx context.Context, _ string) *transport.APIError {
			return c.backend.SendVerificationEmail(ctx, email, actionOpts)
		})
}

// runAction executes one single-shot action machine. Every public call builds
// a fresh machine, so [action.ErrMachineReused] is unreachable from here.
func (c *Client) runAction(ctx context.Context, kind action.Kind, requireAuth bool, success MetricID, request func(context.Context, string) *transport.APIError) (ActionResult, error) {
	if !c.started.Load() {
		return ActionResult{}, ErrClientNotStarted
	}

	m := action.New(kind, action.Deps{
		RequireAuth: requireAuth,
		AccessToken: c.machine.AccessToken,
		Request:     request,
	})
	res := m.Run(ctx)

	switch {
	case res.Local != nil:
		c.metrics.Inc(MetricActionFailure)
		return ActionResult{Error: localAPIError(res.Local)}, nil
	case res.APIErr != nil:
		c.metrics.Inc(MetricActionFailure)
		return ActionResult{Error: res.APIErr}, nil
	default:
		c.metrics.Inc(success)
		return ActionResult{}, nil
	}
}
