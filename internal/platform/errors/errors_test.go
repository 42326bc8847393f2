package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrorCodeNotFound:        http.StatusNotFound,
		ErrorCodeInvalidArgument: http.StatusUnprocessableEntity,
		ErrorCodeDuplicateKey:    http.StatusConflict,
		ErrorCodeConflict:        http.StatusConflict,
		ErrorCodeValidation:      http.StatusBadRequest,
		ErrorCodeJSON:            http.StatusBadRequest,
		ErrorCodeUnauthorized:    http.StatusUnauthorized,
		ErrorCodeForbidden:       http.StatusForbidden,
		ErrorCodeTooManyRequests: http.StatusTooManyRequests,
		ErrorCodeUnavailable:     http.StatusServiceUnavailable,
		ErrorCodeDB:              http.StatusInternalServerError,
		ErrorCodePanic:           http.StatusInternalServerError,
		ErrorCodeUnknown:         http.StatusInternalServerError,
		9999:                     http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatusCode(code); got != want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", code, got, want)
		}
	}
}

func TestConstructors(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Fatalf("nil *Error renders %q", nilErr.Error())
	}

	if e := New(ErrorCodeValidation, "window out of range"); CodeOf(e) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e))
	}
	if e := Newf(ErrorCodeJSON, "bad cursor %d", 12); e.Error() != "bad cursor 12" {
		t.Fatalf("Newf = %q", e.Error())
	}
}

func TestWrapping(t *testing.T) {
	src := stderrs.New("pool exhausted")

	wrapped := Wrap(src, ErrorCodeDB, "lease insert failed")
	if inner := stderrs.Unwrap(wrapped); inner == nil || inner.Error() != "pool exhausted" {
		t.Fatalf("Unwrap lost the source: %v", inner)
	}
	if CodeOf(wrapped) != ErrorCodeDB {
		t.Fatalf("CodeOf(Wrap) = %v", CodeOf(wrapped))
	}

	wf := Wrapf(src, ErrorCodeForbidden, "venue %s blocked", "v-9")
	if want := "venue v-9 blocked: pool exhausted"; wf.Error() != want {
		t.Fatalf("Wrapf = %q, want %q", wf.Error(), want)
	}

	if got, ok := As(wf); !ok || got.Code() != ErrorCodeForbidden {
		t.Fatalf("As on our error: ok=%v", ok)
	}
	if _, ok := As(src); ok {
		t.Fatalf("As matched a foreign error")
	}

	if WrapIf(nil, ErrorCodeDB, "ignored") != nil {
		t.Fatalf("WrapIf(nil) must be nil")
	}
	if WrapIf(src, ErrorCodeDB, "db") == nil {
		t.Fatalf("WrapIf(non-nil) must wrap")
	}
}

func TestFieldAndOpAreCopyOnWrite(t *testing.T) {
	src := stderrs.New("boom")

	base := Wrap(src, ErrorCodeInvalidArgument, "bad party size")
	withField := WithField(base, "party_size")
	withOp := WithOp(withField, "sessions.create")

	if fe, ok := As(withField); !ok || fe.Field() != "party_size" {
		t.Fatalf("WithField lost the field")
	}
	if oe, ok := As(withOp); !ok || oe.Op() != "sessions.create" {
		t.Fatalf("WithOp lost the op")
	}
	if orig, _ := As(base); orig.Field() != "" || orig.Op() != "" {
		t.Fatalf("original mutated: field=%q op=%q", orig.Field(), orig.Op())
	}

	chained := WithFieldChain(src, "slot_time")
	if ce, ok := As(chained); !ok || ce.Field() != "slot_time" || ce.Code() != ErrorCodeUnknown {
		t.Fatalf("WithFieldChain on a foreign error: %+v", ce)
	}
}

func TestWireConversion(t *testing.T) {
	w := (&Error{code: ErrorCodeUnauthorized, msg: "token expired", field: "token"}).ToWire()
	if w.Code != ErrorCodeUnauthorized || w.Message != "token expired" || w.Field != "token" {
		t.Fatalf("ToWire = %+v", w)
	}

	if wf := WireFrom(nil); wf != (Wire{}) {
		t.Fatalf("WireFrom(nil) = %+v", wf)
	}

	src := stderrs.New("pool exhausted")
	if wf := WireFrom(src); wf.Code != ErrorCodeUnknown || wf.Message != "pool exhausted" {
		t.Fatalf("WireFrom(foreign) = %+v", wf)
	}

	// ours carries only the message, never "msg: source"
	ours := Wrapf(src, ErrorCodeForbidden, "venue v-9 blocked")
	if wf := WireFrom(ours); wf.Code != ErrorCodeForbidden || wf.Message != "venue v-9 blocked" {
		t.Fatalf("WireFrom(ours) = %+v", wf)
	}
}

func TestHTTPHelpers(t *testing.T) {
	if st, _ := HTTP(nil); st != http.StatusOK {
		t.Fatalf("HTTP(nil) = %d", st)
	}
	dbErr := Wrap(stderrs.New("x"), ErrorCodeDB, "db")
	if st := HTTPStatus(dbErr); st != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus(db) = %d", st)
	}
}

func TestSugarHelpers(t *testing.T) {
	checks := map[ErrorCode]error{
		ErrorCodeNotFound:        NotFoundf("x"),
		ErrorCodeInvalidArgument: InvalidArgf("x"),
		ErrorCodeDuplicateKey:    DuplicateKeyf("x"),
		ErrorCodeDB:              DBf("x"),
		ErrorCodeJSON:            JSONErrf("x"),
		ErrorCodePanic:           PanicErrf("x"),
		ErrorCodeUnauthorized:    Unauthorizedf("x"),
		ErrorCodeForbidden:       Forbiddenf("x"),
		ErrorCodeConflict:        Conflictf("x"),
		ErrorCodeUnavailable:     Unavailablef("x"),
	}
	for code, err := range checks {
		if !IsCode(err, code) {
			t.Fatalf("helper for %v produced code %v", code, CodeOf(err))
		}
	}

	if !IsCode(ErrNotFound, ErrorCodeNotFound) {
		t.Fatalf("ErrNotFound code = %v", CodeOf(ErrNotFound))
	}
}

func TestRoot(t *testing.T) {
	src := stderrs.New("disk full")
	deep := fmt.Errorf("rollup: %w", fmt.Errorf("flush: %w", src))
	if got := Root(deep); got == nil || got.Error() != "disk full" {
		t.Fatalf("Root = %v", got)
	}
}
