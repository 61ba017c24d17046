package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal"
)

// RefreshToken exchanges the account's current refresh token for a new
// access token.
//
// Only the refresh token stored on an account is accepted; a token
// replaced by a later Login fails with ErrAccountNotFound. With
// Config.JWT.RotateRefreshOnUse the refresh token is replaced as well and
// the new one is returned in RefreshResult.RefreshToken.
func (e *Engine) RefreshToken(ctx context.Context, token string) (RefreshResult, error) {
	if err := e.ready(); err != nil {
		return RefreshResult{}, err
	}
	defer e.observe(MetricRefreshLatency, e.now())

	if token == "" {
		return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, "", ErrMissingToken, "missing_token")
	}
	if _, err := e.tokens.ParseRefresh(token); err != nil {
		return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, "", tokenErr(err), "parse_failed")
	}

	acc, err := e.findByRefreshToken(ctx, token)
	if err != nil {
		return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, "", err, "lookup_failed")
	}

	access, err := e.issueAccess(ctx, acc)
	if err != nil {
		return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, acc.ID, err, "issue_access")
	}
	res := RefreshResult{AccessToken: access}

	if e.config.JWT.RotateRefreshOnUse {
		next, err := e.tokens.IssueRefresh()
		if err != nil {
			return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, acc.ID, joinSigning(err), "issue_refresh")
		}
		// The update is a compare-and-set on Version, so two concurrent
		// uses of the same token cannot both rotate it.
		acc.RefreshTokenHash = internal.HashSecret(next)
		if err := e.updateAccount(ctx, acc); err != nil {
			return RefreshResult{}, e.fail(ctx, MetricRefreshFailure, auditEventRefreshFailure, acc.ID, err, "store_refresh")
		}
		res.RefreshToken = next
		e.metricInc(MetricRefreshRotated)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, acc.ID, nil, func() map[string]string {
		if res.RefreshToken == "" {
			return nil
		}
		return map[string]string{
			"rotated": "true",
		}
	})
	return res, nil
}
