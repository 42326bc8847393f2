package httpkit

import (
	"net/http"
	"testing"

	phttp "dropwatch/internal/platform/net/http"
)

type mountRec struct {
	verb string
	path string
	h    phttp.Handler
}

// recordingRouter satisfies the platform Router surface and records mounts
type recordingRouter struct {
	recs []mountRec
}

func (f *recordingRouter) rec(verb, path string, h phttp.Handler) {
	f.recs = append(f.recs, mountRec{verb: verb, path: path, h: h})
}

func (f *recordingRouter) Route(_ string, fn func(Router))          { fn(f) }
func (f *recordingRouter) Group(fn func(Router))                    { fn(f) }
func (f *recordingRouter) Use(_ ...func(http.Handler) http.Handler) {}
func (f *recordingRouter) Mux() http.Handler                        { return http.NewServeMux() }
func (f *recordingRouter) Handle(string, http.Handler)              {}
func (f *recordingRouter) Get(p string, h phttp.Handler)            { f.rec("GET", p, h) }
func (f *recordingRouter) Post(p string, h phttp.Handler)           { f.rec("POST", p, h) }
func (f *recordingRouter) Put(p string, h phttp.Handler)            { f.rec("PUT", p, h) }
func (f *recordingRouter) Patch(p string, h phttp.Handler)          { f.rec("PATCH", p, h) }
func (f *recordingRouter) Delete(p string, h phttp.Handler)         { f.rec("DELETE", p, h) }
func (f *recordingRouter) Head(p string, h phttp.Handler)           { f.rec("HEAD", p, h) }
func (f *recordingRouter) Options(p string, h phttp.Handler)        { f.rec("OPTIONS", p, h) }

func assertMount(t *testing.T, r *recordingRouter, verb, path string) {
	t.Helper()
	if len(r.recs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(r.recs))
	}
	got := r.recs[0]
	if got.verb != verb || got.path != path {
		t.Fatalf("mounted %s %s, want %s %s", got.verb, got.path, verb, path)
	}
	if got.h == nil {
		t.Fatalf("nil handler mounted for %s %s", verb, path)
	}
}

func TestJSONHelpers_MountUnderTheRightVerb(t *testing.T) {
	type query struct{ Limit int }
	handler := func(_ *http.Request, _ query) (any, error) { return "ok", nil }

	tests := []struct {
		verb  string
		path  string
		mount func(r Router)
	}{
		{"GET", "/feed/just-opened", func(r Router) { GetJSON[query](r, "/feed/just-opened", handler) }},
		{"POST", "/feed/query", func(r Router) { PostJSON[query](r, "/feed/query", handler) }},
		{"PUT", "/buckets", func(r Router) { PutJSON[query](r, "/buckets", handler) }},
		{"PATCH", "/buckets", func(r Router) { PatchJSON[query](r, "/buckets", handler) }},
		{"DELETE", "/buckets", func(r Router) { DeleteJSON[query](r, "/buckets", handler) }},
		{"OPTIONS", "/buckets", func(r Router) { OptionsJSON[query](r, "/buckets", handler) }},
	}
	for _, tc := range tests {
		t.Run(tc.verb, func(t *testing.T) {
			r := &recordingRouter{}
			tc.mount(r)
			assertMount(t, r, tc.verb, tc.path)
		})
	}
}

func TestBodylessHelpers_MountUnderTheRightVerb(t *testing.T) {
	handler := func(_ *http.Request) (any, error) { return "ok", nil }

	tests := []struct {
		verb  string
		path  string
		mount func(r Router)
	}{
		{"GET", "/feed/calendar", func(r Router) { Get(r, "/feed/calendar", handler) }},
		{"POST", "/admin/reset", func(r Router) { Post(r, "/admin/reset", handler) }},
		{"PUT", "/admin/reset", func(r Router) { Put(r, "/admin/reset", handler) }},
		{"PATCH", "/admin/reset", func(r Router) { Patch(r, "/admin/reset", handler) }},
		{"DELETE", "/admin/reset", func(r Router) { Delete(r, "/admin/reset", handler) }},
		{"OPTIONS", "/admin/reset", func(r Router) { Options(r, "/admin/reset", handler) }},
	}
	for _, tc := range tests {
		t.Run(tc.verb, func(t *testing.T) {
			r := &recordingRouter{}
			tc.mount(r)
			assertMount(t, r, tc.verb, tc.path)
		})
	}
}
