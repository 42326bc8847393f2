package modkit

import (
	"net/http"
	"reflect"
	"testing"

	"dropwatch/internal/modkit/httpkit"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	b := Build()

	if b.Name != "" || b.Prefix != "" || b.Ports != nil || len(b.Mw) != 0 {
		t.Fatalf("zero Build = %+v", b)
	}

	// default subrouter is identity
	var r httpkit.Router
	if b.Subrouter(r) != r {
		t.Fatalf("default Subrouter is not identity")
	}

	// default register is a safe no-op
	b.Register(r)
}

func TestBuildComposesAndCopies(t *testing.T) {
	t.Parallel()

	fnPtr := func(f func(http.Handler) http.Handler) uintptr {
		return reflect.ValueOf(f).Pointer()
	}

	mwRecover := func(next http.Handler) http.Handler { return next }
	mwLog := func(next http.Handler) http.Handler { return next }
	mws := []func(http.Handler) http.Handler{mwRecover, mwLog}

	subCalled := 0
	regCalled := 0

	type ports struct {
		Limit  int
		Market string
	}
	want := ports{Limit: 200, Market: "nyc"}

	// subrouter/register wiring goes through an in-package Option
	hooks := Option(func(c *buildCfg) {
		c.subrouter = func(in httpkit.Router) httpkit.Router {
			subCalled++
			return in
		}
		c.register = func(httpkit.Router) { regCalled++ }
	})

	b := Build(
		WithName("feed"),
		WithPrefix("/api/v1/feed"),
		WithMiddlewares(mws...),
		WithPorts[ports](want),
		hooks,
	)

	if b.Name != "feed" || b.Prefix != "/api/v1/feed" {
		t.Fatalf("built = %+v", b)
	}
	if got, ok := b.Ports.(ports); !ok || got != want {
		t.Fatalf("Ports = %#v", b.Ports)
	}

	if len(b.Mw) != 2 || fnPtr(b.Mw[0]) != fnPtr(mwRecover) || fnPtr(b.Mw[1]) != fnPtr(mwLog) {
		t.Fatalf("middleware order lost")
	}

	// the built slice must be detached from the caller's
	replacement := func(next http.Handler) http.Handler { return next }
	mws[0] = replacement
	if fnPtr(b.Mw[0]) != fnPtr(mwRecover) {
		t.Fatalf("Built.Mw aliases the source slice")
	}

	var r httpkit.Router
	if b.Subrouter(r) != r {
		t.Fatalf("Subrouter is not identity")
	}
	b.Register(r)

	if subCalled != 1 || regCalled != 1 {
		t.Fatalf("hooks ran sub=%d reg=%d", subCalled, regCalled)
	}
}
