package repokit

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"dropwatch/internal/platform/store"
)

// recordingQ counts calls and remembers the last statement
type recordingQ struct {
	execs, queries, rows int
	lastSQL              string
	lastArgs             []any
}

func (f *recordingQ) note(sql string, args []any) {
	f.lastSQL = sql
	f.lastArgs = append([]any(nil), args...)
}

func (f *recordingQ) Exec(_ context.Context, sql string, args ...any) (store.CommandTag, error) {
	f.execs++
	f.note(sql, args)
	return nil, nil
}

func (f *recordingQ) Query(_ context.Context, sql string, args ...any) (store.Rows, error) {
	f.queries++
	f.note(sql, args)
	return nil, nil
}

func (f *recordingQ) QueryRow(_ context.Context, sql string, args ...any) store.Row {
	f.rows++
	f.note(sql, args)
	return nil
}

// recordingRunner hands its Queryer to the tx body
type recordingRunner struct {
	q  *recordingQ
	tx int
	recordingQ
}

func (f *recordingRunner) Tx(_ context.Context, fn func(q Queryer) error) error {
	f.tx++
	return fn(f.q)
}

func TestWithBeginHooks_RunBeforeTheTxBody(t *testing.T) {
	t.Parallel()

	q := &recordingQ{}
	inner := &recordingRunner{q: q}

	var order []string
	hook := func(tag string) BeginHook {
		return func(_ context.Context, gotQ Queryer) error {
			if gotQ != q {
				t.Fatalf("hook %s saw a different Queryer", tag)
			}
			order = append(order, tag)
			return nil
		}
	}

	runner := WithBeginHooks(inner, hook("first"), hook("second"))
	err := runner.Tx(context.Background(), func(gotQ Queryer) error {
		if gotQ != q {
			t.Fatalf("body saw a different Queryer")
		}
		order = append(order, "body")
		return nil
	})
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if want := []string{"first", "second", "body"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if inner.tx != 1 {
		t.Fatalf("inner Tx calls = %d", inner.tx)
	}
}

func TestWithBeginHooks_FailingHookStopsTheTx(t *testing.T) {
	t.Parallel()

	inner := &recordingRunner{q: &recordingQ{}}
	hookErr := errors.New("hook refused")

	runner := WithBeginHooks(inner,
		func(context.Context, Queryer) error { return hookErr },
		func(context.Context, Queryer) error {
			t.Fatalf("later hook ran after a failure")
			return nil
		})

	bodyRan := false
	err := runner.Tx(context.Background(), func(Queryer) error { bodyRan = true; return nil })
	if !errors.Is(err, hookErr) {
		t.Fatalf("err = %v, want hook error", err)
	}
	if bodyRan {
		t.Fatalf("body ran after a hook failure")
	}
}

func TestWithBeginHooks_NonTxCallsDelegate(t *testing.T) {
	t.Parallel()

	inner := &recordingRunner{q: &recordingQ{}}
	runner := WithBeginHooks(inner)
	ctx := context.Background()

	if _, err := runner.Exec(ctx, "UPDATE discovery_buckets SET scanned_at=$1", "now"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if inner.execs != 1 || inner.lastSQL != "UPDATE discovery_buckets SET scanned_at=$1" {
		t.Fatalf("Exec not delegated: %+v", inner.recordingQ)
	}

	if _, err := runner.Query(ctx, "SELECT slot_id FROM slot_availability WHERE bucket_id=$1", "b-1"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if inner.queries != 1 || !reflect.DeepEqual(inner.lastArgs, []any{"b-1"}) {
		t.Fatalf("Query not delegated: %+v", inner.recordingQ)
	}

	_ = runner.QueryRow(ctx, "SELECT count(*) FROM drop_events WHERE venue_id=$1", "v-1")
	if inner.rows != 1 || !reflect.DeepEqual(inner.lastArgs, []any{"v-1"}) {
		t.Fatalf("QueryRow not delegated: %+v", inner.recordingQ)
	}
}

func TestRunMidHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := &recordingQ{}
	var order []string

	ok := func(tag string) MidHook {
		return func(context.Context, Queryer) error {
			order = append(order, tag)
			return nil
		}
	}

	if err := RunMidHooks(ctx, q, ok("a"), ok("b")); err != nil {
		t.Fatalf("RunMidHooks: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Fatalf("order = %v", order)
	}

	order = order[:0]
	midErr := errors.New("mid refused")
	err := RunMidHooks(ctx, q,
		ok("a"),
		func(context.Context, Queryer) error { order = append(order, "bad"); return midErr },
		func(context.Context, Queryer) error {
			t.Fatalf("hook ran after a failure")
			return nil
		})
	if !errors.Is(err, midErr) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "bad"}) {
		t.Fatalf("order = %v", order)
	}
}
