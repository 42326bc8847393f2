package repokit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// pingProbe remembers the context MustPing handed it
type pingProbe struct {
	ctx context.Context
	err error
}

func (p *pingProbe) Ping(ctx context.Context) error {
	p.ctx = ctx
	return p.err
}

type guardProbe struct{ err error }

func (g guardProbe) Guard(context.Context) error { return g.err }

func expectPanicContaining(t *testing.T, wantSub string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", wantSub)
		}
		msg := fmt.Sprint(r)
		if !strings.Contains(msg, wantSub) {
			t.Fatalf("panic = %q, want substring %q", msg, wantSub)
		}
	}()
	fn()
}

func TestMustPing(t *testing.T) {
	t.Parallel()

	t.Run("nil dependency panics", func(t *testing.T) {
		t.Parallel()
		expectPanicContaining(t, "pg: nil dependency", func() {
			MustPing(context.Background(), "pg", nil)
		})
	})

	t.Run("adds a default deadline when the parent has none", func(t *testing.T) {
		t.Parallel()

		probe := &pingProbe{}
		start := time.Now()
		MustPing(context.Background(), "pg", probe)

		if probe.ctx == nil {
			t.Fatalf("probe never pinged")
		}
		dl, ok := probe.ctx.Deadline()
		if !ok {
			t.Fatalf("no deadline on the ping context")
		}
		if d := dl.Sub(start); d < 4*time.Second || d > 6*time.Second {
			t.Fatalf("deadline %v from start, want about 5s", d)
		}
	})

	t.Run("keeps the parent deadline", func(t *testing.T) {
		t.Parallel()

		parent, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
		defer cancel()

		probe := &pingProbe{}
		MustPing(parent, "clickhouse", probe)

		parentDL, _ := parent.Deadline()
		gotDL, ok := probe.ctx.Deadline()
		if !ok {
			t.Fatalf("no deadline on the ping context")
		}
		if !gotDL.Equal(parentDL) {
			t.Fatalf("deadline = %v, want parent's %v", gotDL, parentDL)
		}
	})

	t.Run("ping failure panics with the dependency name", func(t *testing.T) {
		t.Parallel()

		probe := &pingProbe{err: errors.New("connection refused")}
		expectPanicContaining(t, "clickhouse ping failed: connection refused", func() {
			MustPing(context.Background(), "clickhouse", probe)
		})
	})
}

func TestMustGuard(t *testing.T) {
	t.Parallel()

	expectPanicContaining(t, "dependency guard failed: schema drift", func() {
		MustGuard(context.Background(), guardProbe{err: errors.New("schema drift")})
	})

	MustGuard(context.Background(), guardProbe{})
}
