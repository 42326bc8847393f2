// Package repokit holds the shared types and seams repository
// implementations build on
package repokit

import (
	"context"

	"dropwatch/internal/platform/store"
	ch "dropwatch/internal/platform/store/ch"
)

// Queryer is the narrow read and write surface SQL repos take
type Queryer = store.RowQuerier

// RowQuerier mirrors Queryer for callers using the longer name
type RowQuerier = store.RowQuerier

// TxRunner runs a function inside a transaction
type TxRunner = store.TxRunner

type (
	// Rows aliases the store result set
	Rows = store.Rows

	// Row aliases a single-row result
	Row = store.Row

	// CommandTag aliases the write result
	CommandTag = store.CommandTag
)

// WithTx runs fn inside a transaction on tx
func WithTx(ctx context.Context, tx TxRunner, fn func(q Queryer) error) error {
	return tx.Tx(ctx, fn)
}

// PG is the identity seam for handing a Postgres Queryer to a repo
func PG(_ context.Context, q store.RowQuerier) store.RowQuerier { return q }

// TX is the identity seam for handing a TxRunner to a repo
func TX(_ context.Context, tx store.TxRunner) store.TxRunner { return tx }

// CH is the identity seam for handing the ClickHouse client to a repo
func CH(_ context.Context, db *ch.CH) *ch.CH { return db }
