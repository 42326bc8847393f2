package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// plainRunner satisfies TxRunner but has no Ping
type plainRunner struct{}

func (*plainRunner) Tx(context.Context, func(q RowQuerier) error) error { return nil }
func (*plainRunner) Exec(context.Context, string, ...any) (CommandTag, error) {
	return nil, nil
}
func (*plainRunner) Query(context.Context, string, ...any) (Rows, error) { return nil, nil }
func (*plainRunner) QueryRow(context.Context, string, ...any) Row        { return nil }

// pingingRunner adds Ping with a scripted result
type pingingRunner struct {
	plainRunner
	err error
}

func (p *pingingRunner) Ping(context.Context) error { return p.err }

func TestGuard(t *testing.T) {
	t.Parallel()

	t.Run("nil store errors", func(t *testing.T) {
		t.Parallel()
		var s *Store
		if err := s.Guard(context.Background()); err == nil {
			t.Fatalf("nil store passed the guard")
		}
	})

	t.Run("no backends is fine", func(t *testing.T) {
		t.Parallel()
		if err := (&Store{}).Guard(context.Background()); err != nil {
			t.Fatalf("Guard: %v", err)
		}
	})

	t.Run("non-pinging backend is skipped", func(t *testing.T) {
		t.Parallel()
		s := &Store{PG: &plainRunner{}}
		if err := s.Guard(context.Background()); err != nil {
			t.Fatalf("Guard: %v", err)
		}
	})

	t.Run("healthy ping passes", func(t *testing.T) {
		t.Parallel()
		s := &Store{PG: &pingingRunner{}}
		if err := s.Guard(context.Background()); err != nil {
			t.Fatalf("Guard: %v", err)
		}
	})

	t.Run("ping failure carries the backend name", func(t *testing.T) {
		t.Parallel()
		s := &Store{PG: &pingingRunner{err: errors.New("socket closed")}}
		err := s.Guard(context.Background())
		if err == nil {
			t.Fatalf("failing ping passed the guard")
		}
		if !strings.HasPrefix(err.Error(), "pg: ") {
			t.Fatalf("err = %q, want pg: prefix", err.Error())
		}
	})
}
