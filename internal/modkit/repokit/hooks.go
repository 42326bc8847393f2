package repokit

import "context"

// BeginHook runs at the top of a transaction with the tx-bound Queryer
type BeginHook func(ctx context.Context, q Queryer) error

// WithBeginHooks decorates a TxRunner so every Tx runs hooks before its body
func WithBeginHooks(inner TxRunner, hooks ...BeginHook) TxRunner {
	return hookedTx{inner: inner, hooks: hooks}
}

type hookedTx struct {
	inner TxRunner
	hooks []BeginHook
}

// Tx opens the inner transaction, runs the hooks in order, then fn.
// A failing hook aborts before fn runs
func (h hookedTx) Tx(ctx context.Context, fn func(q Queryer) error) error {
	return h.inner.Tx(ctx, func(q Queryer) error {
		for _, hk := range h.hooks {
			if err := hk(ctx, q); err != nil {
				return err
			}
		}
		return fn(q)
	})
}

// non-Tx calls pass straight through to inner

func (h hookedTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return h.inner.Exec(ctx, sql, args...)
}

func (h hookedTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return h.inner.Query(ctx, sql, args...)
}

func (h hookedTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return h.inner.QueryRow(ctx, sql, args...)
}

// MidHook is invoked explicitly from inside a transaction body
type MidHook func(ctx context.Context, q Queryer) error

// RunMidHooks runs hooks in order against the tx-bound Queryer,
// stopping at the first error
func RunMidHooks(ctx context.Context, q Queryer, hooks ...MidHook) error {
	for _, hk := range hooks {
		if err := hk(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
