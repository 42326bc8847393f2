package httpkit

import (
	"net/http"
	"testing"

	phttp "dropwatch/internal/platform/net/http"
)

// mountRouter extends the recording fixture with Route and Use bookkeeping
type mountRouter struct {
	recordingRouter
	prefixes []string
	useCalls int
	lastMWs  int
}

func (m *mountRouter) Route(prefix string, fn func(Router)) {
	m.prefixes = append(m.prefixes, prefix)
	fn(m)
}

func (m *mountRouter) Use(mw ...func(http.Handler) http.Handler) {
	m.useCalls++
	m.lastMWs = len(mw)
}

func TestMountUnder(t *testing.T) {
	t.Run("middleware applied to the subrouter once", func(t *testing.T) {
		root := &mountRouter{}
		noop := func(next http.Handler) http.Handler { return next }

		MountUnder(root, "/api/v1/feed", []func(http.Handler) http.Handler{noop, noop}, func(sub Router) {
			sub.Get("/just-opened", phttp.Handle(func(*http.Request) phttp.Response {
				return phttp.NoContent()
			}))
		})

		if len(root.prefixes) != 1 || root.prefixes[0] != "/api/v1/feed" {
			t.Fatalf("prefixes = %v", root.prefixes)
		}
		if root.useCalls != 1 || root.lastMWs != 2 {
			t.Fatalf("Use calls=%d mws=%d", root.useCalls, root.lastMWs)
		}
		if len(root.recs) != 1 {
			t.Fatalf("registrations = %d", len(root.recs))
		}
		got := root.recs[0]
		if got.verb != "GET" || got.path != "/just-opened" || got.h == nil {
			t.Fatalf("mounted %s %s", got.verb, got.path)
		}
	})

	t.Run("empty middleware skips Use", func(t *testing.T) {
		root := &mountRouter{}

		MountUnder(root, "/api/v1/sessions", nil, func(sub Router) {
			sub.Delete("/expired", phttp.Handle(func(*http.Request) phttp.Response {
				return phttp.NoContent()
			}))
		})

		if root.useCalls != 0 {
			t.Fatalf("Use calls = %d, want 0", root.useCalls)
		}
		if len(root.prefixes) != 1 || root.prefixes[0] != "/api/v1/sessions" {
			t.Fatalf("prefixes = %v", root.prefixes)
		}
		if len(root.recs) != 1 || root.recs[0].verb != "DELETE" || root.recs[0].path != "/expired" {
			t.Fatalf("registrations = %+v", root.recs)
		}
	})
}
