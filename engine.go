package authcore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
)

const (
	maxEmailLength = 254
	maxNameLength  = 100
)

// Engine runs the account operations. Build one with [New].
type Engine struct {
	config   Config
	store    AccountStore
	notifier Notifier
	hasher   PasswordHasher
	codes    CodeGenerator
	tokens   TokenIssuer
	limiter  *rate.Limiter
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.notifier == nil || e.hasher == nil || e.codes == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
BOUNDED DEPENDENCY CALLS
====================================
*/

// bounded runs fn under a timeout derived from ctx. It returns as soon as
// the bound elapses even when fn ignores its context; fn keeps running in
// the background and its result is discarded.
func bounded[T any](ctx context.Context, limit time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, contextErr(err)
	}
	if limit <= 0 {
		v, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return v, errors.Join(contextErr(ctx.Err()), err)
		}
		return v, err
	}

	cctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && cctx.Err() != nil {
			return r.v, errors.Join(contextErr(cctx.Err()), r.err)
		}
		return r.v, r.err
	case <-cctx.Done():
		return zero, contextErr(cctx.Err())
	}
}

func contextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrDependencyTimeout, err)
	}
	return err
}

func (e *Engine) storeCall(ctx context.Context, fn func(context.Context) error) error {
	_, err := bounded(ctx, e.config.Timeouts.Store, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return e.storeErr(err)
}

func (e *Engine) storeFind(ctx context.Context, fn func(context.Context) (*Account, error)) (*Account, error) {
	acc, err := bounded(ctx, e.config.Timeouts.Store, fn)
	if err != nil {
		return nil, e.storeErr(err)
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// limiterCall runs a throttle call under the store timeout.
func (e *Engine) limiterCall(ctx context.Context, fn func(context.Context) error) error {
	_, err := bounded(ctx, e.config.Timeouts.Store, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if errors.Is(err, ErrDependencyTimeout) {
		e.metricInc(MetricDependencyTimeout)
	}
	return err
}

// storeErr passes sentinels through and wraps everything else in
// ErrStoreUnavailable.
func (e *Engine) storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDependencyTimeout):
		e.metricInc(MetricDependencyTimeout)
		return err
	case errors.Is(err, ErrConcurrentUpdate):
		e.metricInc(MetricConcurrentUpdate)
		return err
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled):
		return err
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}
}

func (e *Engine) findByEmail(ctx context.Context, email string) (*Account, error) {
	return e.storeFind(ctx, func(ctx context.Context) (*Account, error) {
		return e.store.FindByEmail(ctx, email)
	})
}

func (e *Engine) findByEmailOrName(ctx context.Context, email, name string) (*Account, error) {
	return e.storeFind(ctx, func(ctx context.Context) (*Account, error) {
		return e.store.FindByEmailAndName(ctx, email, name)
	})
}

// findByRefreshToken looks the account up by token digest and accepts it
// only when its stored digest still matches token. A stale store index
// cannot hand out an account whose token was replaced.
func (e *Engine) findByRefreshToken(ctx context.Context, token string) (*Account, error) {
	digest := internal.HashSecret(token)
	acc, err := e.storeFind(ctx, func(ctx context.Context) (*Account, error) {
		return e.store.FindByRefreshToken(ctx, digest)
	})
	if err != nil {
		return nil, err
	}
	if !internal.SecretMatches(token, acc.RefreshTokenHash) {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (e *Engine) createAccount(ctx context.Context, acc *Account) error {
	return e.storeCall(ctx, func(ctx context.Context) error {
		return e.store.Create(ctx, acc)
	})
}

func (e *Engine) updateAccount(ctx context.Context, acc *Account) error {
	return e.storeCall(ctx, func(ctx context.Context) error {
		return e.store.Update(ctx, acc.ID, acc)
	})
}

/*
====================================
NOTIFICATION
====================================
*/

// deliver sends a notification under the configured timeout and policy.
// Under NotifyBestEffort the returned error is always nil.
func (e *Engine) deliver(ctx context.Context, kind string, acc *Account, send func(context.Context) error) (Delivery, error) {
	_, err := bounded(ctx, e.config.Timeouts.Notification, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, send(ctx)
	})
	if err == nil {
		e.metricInc(MetricNotificationSent)
		return Delivery{Sent: true}, nil
	}

	if errors.Is(err, ErrDependencyTimeout) {
		e.metricInc(MetricDependencyTimeout)
	}
	err = errors.Join(ErrNotificationFailed, err)
	e.metricInc(MetricNotificationFailure)
	e.emitAudit(ctx, auditEventNotificationFailure, false, acc.ID, err, func() map[string]string {
		return map[string]string{"kind": kind}
	})

	delivery := Delivery{Sent: false, Err: err}
	if e.config.Notification.Policy == NotifyRequired {
		return delivery, err
	}
	e.logger.WarnContext(ctx, "notification failed", "kind", kind, "account_id", acc.ID, "error", err)
	return delivery, nil
}

/*
====================================
TOKENS
====================================
*/

// issuePair signs a new access and refresh token for acc and stores the
// refresh digest on acc. The caller persists acc.
func (e *Engine) issuePair(ctx context.Context, acc *Account) (TokenPair, error) {
	access, err := e.issueAccess(ctx, acc)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.IssueRefresh()
	if err != nil {
		return TokenPair{}, joinSigning(err)
	}
	acc.RefreshTokenHash = internal.HashSecret(refresh)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) issueAccess(ctx context.Context, acc *Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", contextErr(err)
	}
	access, err := e.tokens.IssueAccess(acc.ID, acc.Email, acc.Verified)
	if err != nil {
		return "", joinSigning(err)
	}
	return access, nil
}

func joinSigning(err error) error {
	return errors.Join(ErrSigning, err)
}

func tokenErr(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return errors.Join(ErrExpiredToken, err)
	}
	return errors.Join(ErrInvalidToken, err)
}

/*
====================================
CODES AND INPUT
====================================
*/

func (e *Engine) newCode(purpose OTPPurpose) (string, *OTPState, error) {
	code, err := e.codes.Generate()
	if err != nil {
		return "", nil, err
	}
	return code.Value, &OTPState{
		CodeHash: otp.Hash(code.Value),
		Purpose:  purpose,
		IssuedAt: e.now().UTC(),
	}, nil
}

// codeMatches reports whether code is the live code of the given purpose.
func (e *Engine) codeMatches(state *OTPState, purpose OTPPurpose, code string) bool {
	if state == nil || state.Purpose != purpose || strings.TrimSpace(code) == "" {
		return false
	}
	ttl := e.config.OTP.TTL
	if purpose == OTPPasswordReset {
		ttl = e.config.OTP.ResetTTL
	}
	if otp.Expired(state.IssuedAt, e.now(), ttl) {
		return false
	}
	return otp.Matches(code, state.CodeHash)
}

// dummyVerify spends about as long as a real verification so that a
// missing account answers in the same time as a wrong password.
func (e *Engine) dummyVerify(password string) {
	e.dummyOnce.Do(func() {
		var seed [16]byte
		_, _ = rand.Read(seed[:])
		h, err := e.hasher.Hash(hex.EncodeToString(seed[:]))
		if err == nil {
			e.dummyHash = h
		}
	})
	if e.dummyHash == "" || password == "" {
		return
	}
	_, _ = e.hasher.Verify(password, e.dummyHash)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func validName(name string) bool {
	return name != "" && utf8.RuneCountInString(name) <= maxNameLength
}

func (e *Engine) checkPasswordPolicy(password string) error {
	if len(password) < e.config.Password.MinLength || len(password) > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) throttleCode(ctx context.Context, scope rate.Scope, email string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiterCall(ctx, func(ctx context.Context) error {
		return e.limiter.CheckCode(ctx, scope, email)
	})
	if err != nil {
		e.emitRateLimit(ctx, string(scope), email)
		return errors.Join(ErrRateLimited, err)
	}
	return nil
}

func (e *Engine) recordCodeFailure(ctx context.Context, scope rate.Scope, email string) {
	if e.limiter == nil {
		return
	}
	err := e.limiterCall(ctx, func(ctx context.Context) error {
		return e.limiter.IncrementCode(ctx, scope, email)
	})
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.WarnContext(ctx, "code throttle update failed", "scope", string(scope), "error", err)
	}
}

func (e *Engine) clearCodeFailures(ctx context.Context, scope rate.Scope, email string) {
	if e.limiter == nil {
		return
	}
	err := e.limiterCall(ctx, func(ctx context.Context) error {
		return e.limiter.ResetCode(ctx, scope, email)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "code throttle reset failed", "scope", string(scope), "error", err)
	}
}
