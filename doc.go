// Package authcore is an account-authentication engine: signup with email
// OTP verification, password login, access and refresh tokens, OAuth
// identity linking and password recovery.
//
// The package owns every account invariant. Persistence and email delivery
// sit behind the narrow [AccountStore] and [Notifier] interfaces; concrete
// backends live in store/* and notify. An [Engine] is assembled once with
// [New] and the [Builder] methods and is safe for concurrent use.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithAccountStore(memstore.New()).
//		WithNotifier(mailer).
//		Build()
//
// # Errors
//
// Every failure is a package sentinel matched with [errors.Is]. Causes from
// adapters are attached with [errors.Join] so callers can still inspect
// them. [ErrorResponse] maps sentinels to wire statuses without reading
// message text.
//
// # Concurrency
//
// Account writes are read-modify-write against the store, which rejects a
// stale [Account.Version] with [ErrConcurrentUpdate]. The engine never
// retries. Store and notifier calls run under Config.Timeouts and surface
// [ErrDependencyTimeout] when the bound elapses, even if the adapter ignores
// its context.
package authcore
