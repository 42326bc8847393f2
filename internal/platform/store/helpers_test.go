package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	perr "dropwatch/internal/platform/errors"
)

type stubTag struct {
	s string
	n int64
}

func (t stubTag) String() string      { return t.s }
func (t stubTag) RowsAffected() int64 { return t.n }

// stubQuerier serves canned results and records the last statement
type stubQuerier struct {
	gotSQL  string
	gotArgs []any

	tag     CommandTag
	execErr error

	rows     Rows
	queryErr error

	rowErr error
}

func (s *stubQuerier) Exec(_ context.Context, sql string, args ...any) (CommandTag, error) {
	s.gotSQL, s.gotArgs = sql, args
	return s.tag, s.execErr
}

func (s *stubQuerier) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	s.gotSQL, s.gotArgs = sql, args
	return s.rows, s.queryErr
}

func (s *stubQuerier) QueryRow(_ context.Context, sql string, args ...any) Row {
	s.gotSQL, s.gotArgs = sql, args
	return stubRow{err: s.rowErr}
}

// stubRow scans a fixed scalar into the first dest
type stubRow struct {
	v   any
	err error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 && r.v != nil {
		setDest(dest[0], r.v)
	}
	return nil
}

// stubRows iterates a fixed matrix; setDest handles the usual pg value kinds
type stubRows struct {
	cols   []string
	matrix [][]any
	pos    int
	iterEr error
	closed bool
}

func sliceRows(cols []string, matrix [][]any) *stubRows {
	return &stubRows{cols: cols, matrix: matrix, pos: -1}
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Err() error        { return r.iterEr }
func (r *stubRows) Close()            { r.closed = true }

func (r *stubRows) Next() bool {
	if r.iterEr != nil {
		return false
	}
	r.pos++
	return r.pos < len(r.matrix)
}

func (r *stubRows) Scan(dest ...any) error {
	if r.iterEr != nil {
		return r.iterEr
	}
	if r.pos < 0 || r.pos >= len(r.matrix) {
		return errors.New("scan past end")
	}
	row := r.matrix[r.pos]
	if len(dest) != len(row) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		setDest(dest[i], row[i])
	}
	return nil
}

func setDest(dst, src any) {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || !dv.Elem().CanSet() {
		return
	}
	if src == nil {
		dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
		return
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dv.Elem().Type()):
		dv.Elem().Set(sv)
	case sv.Type().ConvertibleTo(dv.Elem().Type()):
		dv.Elem().Set(sv.Convert(dv.Elem().Type()))
	default:
		dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
	}
}

func TestExecAndExecOne(t *testing.T) {
	t.Parallel()

	q := &stubQuerier{tag: stubTag{s: "INSERT 0 1", n: 1}}
	tag, err := Exec(context.Background(), q, "insert into venues", "v-88")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if tag.String() != "INSERT 0 1" || q.gotSQL != "insert into venues" || len(q.gotArgs) != 1 {
		t.Fatalf("call not forwarded: tag=%q sql=%q args=%v", tag.String(), q.gotSQL, q.gotArgs)
	}
	if err := ExecOne(context.Background(), q, "update one"); err != nil {
		t.Fatalf("ExecOne on single row: %v", err)
	}

	many := &stubQuerier{tag: stubTag{s: "UPDATE 3", n: 3}}
	if err := ExecOne(context.Background(), many, "update all"); err == nil {
		t.Fatalf("ExecOne must reject 3 affected rows")
	}
	none := &stubQuerier{tag: stubTag{s: "DELETE 0", n: 0}}
	if err := ExecOne(context.Background(), none, "delete missing"); err == nil {
		t.Fatalf("ExecOne must reject 0 affected rows")
	}
	broken := &stubQuerier{execErr: errors.New("pg down")}
	if err := ExecOne(context.Background(), broken, "x"); err == nil || err.Error() != "pg down" {
		t.Fatalf("exec error must bubble, got %v", err)
	}
}

func TestScalar(t *testing.T) {
	t.Parallel()

	countQ := &scalarQuerier{v: int64(12)}
	n, err := Scalar[int64](context.Background(), countQ, "select count(*) from drop_events")
	if err != nil {
		t.Fatalf("Scalar: %v", err)
	}
	if n != 12 {
		t.Fatalf("Scalar = %d, want 12", n)
	}

	bad := &stubQuerier{rowErr: errors.New("conn reset")}
	if _, err := Scalar[int](context.Background(), bad, "select 1"); err == nil {
		t.Fatalf("Scalar must surface scan errors")
	}
}

// scalarQuerier returns a row that scans v into the first dest
type scalarQuerier struct{ v any }

func (s *scalarQuerier) Exec(context.Context, string, ...any) (CommandTag, error) {
	return nil, errors.New("unexpected Exec")
}
func (s *scalarQuerier) Query(context.Context, string, ...any) (Rows, error) {
	return nil, errors.New("unexpected Query")
}
func (s *scalarQuerier) QueryRow(context.Context, string, ...any) Row { return stubRow{v: s.v} }

func scanBucketID(r Row) (string, error) {
	var id string
	return id, r.Scan(&id)
}

func TestOne(t *testing.T) {
	t.Parallel()

	rows := sliceRows([]string{"bucket_id"}, [][]any{{"2026-02-18_19:00"}})
	q := &stubQuerier{rows: rows}
	got, err := One(context.Background(), q, scanBucketID, "select bucket")
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if got != "2026-02-18_19:00" {
		t.Fatalf("One = %q", got)
	}
	if !rows.closed {
		t.Fatalf("rows must be closed after One")
	}

	empty := &stubQuerier{rows: sliceRows([]string{"bucket_id"}, nil)}
	if _, err := One(context.Background(), empty, scanBucketID, "q"); !errors.Is(err, perr.ErrNotFound) {
		t.Fatalf("empty result = %v, want ErrNotFound", err)
	}

	dup := &stubQuerier{rows: sliceRows([]string{"bucket_id"}, [][]any{{"a"}, {"b"}})}
	if _, err := One(context.Background(), dup, scanBucketID, "q"); err == nil {
		t.Fatalf("One must reject a second row")
	}

	down := &stubQuerier{queryErr: errors.New("query refused")}
	if _, err := One(context.Background(), down, scanBucketID, "q"); err == nil || err.Error() != "query refused" {
		t.Fatalf("query error must bubble, got %v", err)
	}

	iterBroken := sliceRows([]string{"bucket_id"}, nil)
	iterBroken.iterEr = errors.New("iterator died")
	if _, err := One(context.Background(), &stubQuerier{rows: iterBroken}, scanBucketID, "q"); err == nil {
		t.Fatalf("rows.Err must bubble when Next never yields")
	}
}

func TestMany(t *testing.T) {
	t.Parallel()

	matrix := [][]any{{"slot-a"}, {"slot-b"}, {"slot-c"}}
	q := &stubQuerier{rows: sliceRows([]string{"slot_id"}, matrix)}
	got, err := Many(context.Background(), q, scanBucketID, "select slots")
	if err != nil {
		t.Fatalf("Many: %v", err)
	}
	want := []string{"slot-a", "slot-b", "slot-c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Many = %v, want %v", got, want)
	}

	// empty result is a nil slice, not an error
	none := &stubQuerier{rows: sliceRows([]string{"slot_id"}, nil)}
	if got, err := Many(context.Background(), none, scanBucketID, "q"); err != nil || len(got) != 0 {
		t.Fatalf("empty Many = (%v, %v)", got, err)
	}

	down := &stubQuerier{queryErr: errors.New("no route")}
	if _, err := Many(context.Background(), down, scanBucketID, "q"); err == nil {
		t.Fatalf("query error must bubble")
	}

	// a scanner error aborts iteration
	rows := sliceRows([]string{"slot_id"}, matrix)
	calls := 0
	_, err = Many(context.Background(), &stubQuerier{rows: rows}, func(r Row) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("mapper refused")
		}
		return scanBucketID(r)
	}, "q")
	if err == nil || err.Error() != "mapper refused" {
		t.Fatalf("mapper error = %v", err)
	}

	iterBroken := sliceRows([]string{"slot_id"}, nil)
	iterBroken.iterEr = errors.New("iter gone")
	if out, err := Many(context.Background(), &stubQuerier{rows: iterBroken}, scanBucketID, "q"); err == nil || out != nil {
		t.Fatalf("rows.Err must bubble with nil slice, got (%v, %v)", out, err)
	}
}

func TestMapAndMaps(t *testing.T) {
	t.Parallel()

	cols := []string{"venue_id", "venue_name"}
	matrix := [][]any{{"v-1", "Lilia"}, {"v-2", "Don Angie"}}

	one := &stubQuerier{rows: sliceRows(cols, matrix[:1])}
	m, err := Map(context.Background(), one, "q")
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m["venue_id"] != "v-1" || m["venue_name"] != "Lilia" {
		t.Fatalf("Map = %v", m)
	}

	empty := &stubQuerier{rows: sliceRows(cols, nil)}
	if _, err := Map(context.Background(), empty, "q"); !errors.Is(err, perr.ErrNotFound) {
		t.Fatalf("Map on empty = %v, want ErrNotFound", err)
	}

	both := &stubQuerier{rows: sliceRows(cols, matrix)}
	if _, err := Map(context.Background(), both, "q"); err == nil {
		t.Fatalf("Map must reject a second row")
	}

	all := &stubQuerier{rows: sliceRows(cols, matrix)}
	ms, err := Maps(context.Background(), all, "q")
	if err != nil {
		t.Fatalf("Maps: %v", err)
	}
	if len(ms) != 2 || ms[1]["venue_name"] != "Don Angie" {
		t.Fatalf("Maps = %#v", ms)
	}

	// short row trips the arity check inside scanMap
	short := &stubQuerier{rows: sliceRows(cols, [][]any{{"v-1"}})}
	if _, err := Map(context.Background(), short, "q"); err == nil {
		t.Fatalf("expected arity error")
	}

	// nil *time.Time dereferences to a nil map value
	var ts *time.Time
	nilTime := &stubQuerier{rows: sliceRows([]string{"scanned_at"}, [][]any{{ts}})}
	m2, err := Map(context.Background(), nilTime, "q")
	if err != nil {
		t.Fatalf("Map nil time: %v", err)
	}
	if v, present := m2["scanned_at"]; !present || v != nil {
		t.Fatalf("scanned_at = %#v, want present nil", m2["scanned_at"])
	}

	iterBroken := sliceRows(cols, nil)
	iterBroken.iterEr = errors.New("rows gone")
	if out, err := Maps(context.Background(), &stubQuerier{rows: iterBroken}, "q"); err == nil || out != nil {
		t.Fatalf("Maps must bubble rows.Err, got (%v, %v)", out, err)
	}
}

func TestStructByName(t *testing.T) {
	t.Parallel()

	type venueRow struct {
		ID       string `db:"venue_id"`
		Name     string
		Payload  []byte    // filled from a string column
		Note     string    // filled from a []byte column
		LastSeen time.Time // deref of a *time.Time column
	}

	seen := time.Date(2026, 2, 18, 20, 0, 0, 0, time.UTC)
	cols := []string{"venue_id", "name", "payload", "note", "lastseen"}
	matrix := [][]any{
		{"v-1", "Lilia", "raw-json", []byte("walk-in only"), &seen},
		{"v-2", "Oxomoco", "x", []byte("y"), &seen},
	}

	got, err := StructByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, matrix[:1])}, "q")
	if err != nil {
		t.Fatalf("StructByName: %v", err)
	}
	if got.ID != "v-1" || got.Name != "Lilia" || string(got.Payload) != "raw-json" ||
		got.Note != "walk-in only" || !got.LastSeen.Equal(seen) {
		t.Fatalf("StructByName = %#v", got)
	}

	if _, err := StructByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, nil)}, "q"); !errors.Is(err, perr.ErrNotFound) {
		t.Fatalf("empty = %v, want ErrNotFound", err)
	}
	if _, err := StructByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, matrix)}, "q"); err == nil {
		t.Fatalf("must reject a second row")
	}

	vs, err := StructsByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, matrix)}, "q")
	if err != nil {
		t.Fatalf("StructsByName: %v", err)
	}
	if len(vs) != 2 || vs[1].Name != "Oxomoco" {
		t.Fatalf("StructsByName = %#v", vs)
	}

	if out, err := StructsByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, nil)}, "q"); err != nil || len(out) != 0 {
		t.Fatalf("empty StructsByName = (%v, %v)", out, err)
	}

	// short row bubbles the scanMap error
	if _, err := StructByName[venueRow](context.Background(), &stubQuerier{rows: sliceRows(cols, [][]any{{}})}, "q"); err == nil {
		t.Fatalf("expected scan error on short row")
	}

	iterBroken := sliceRows(cols, nil)
	iterBroken.iterEr = errors.New("pg went away")
	if _, err := StructsByName[venueRow](context.Background(), &stubQuerier{rows: iterBroken}, "q"); err == nil {
		t.Fatalf("rows.Err must bubble")
	}
}

func TestStructFieldMapping(t *testing.T) {
	t.Parallel()

	type row struct {
		Count int64  `db:"n"` // converted from int32
		Name  string // from []byte
		Raw   []byte // from string
		Plain int
	}

	cols := []string{"n", "name", "raw", "plain"}
	matrix := [][]any{{int32(7), []byte("Lilia"), "blob", 3}}

	got, err := StructByName[row](context.Background(), &stubQuerier{rows: sliceRows(cols, matrix)}, "q")
	if err != nil {
		t.Fatalf("StructByName: %v", err)
	}
	if got.Count != 7 || got.Name != "Lilia" || string(got.Raw) != "blob" || got.Plain != 3 {
		t.Fatalf("conversions = %#v", got)
	}

	idx := indexStructFields(reflect.TypeOf(row{}))
	if _, ok := idx["n"]; !ok {
		t.Fatalf("db tag not indexed: %v", idx)
	}
	if _, ok := idx["plain"]; !ok {
		t.Fatalf("field name not indexed lowercase: %v", idx)
	}
}

func TestAssign(t *testing.T) {
	t.Parallel()

	var s struct {
		S string
		B []byte
		N int
		P *int
	}
	rv := reflect.ValueOf(&s).Elem()

	assign(rv.FieldByName("S"), []byte("bytes in"))
	if s.S != "bytes in" {
		t.Fatalf("[]byte to string = %q", s.S)
	}
	assign(rv.FieldByName("B"), "string in")
	if string(s.B) != "string in" {
		t.Fatalf("string to []byte = %q", s.B)
	}
	assign(rv.FieldByName("P"), nil)
	if s.P != nil {
		t.Fatalf("nil assign must leave zero value")
	}
	// incompatible source leaves the zero value in place
	assign(rv.FieldByName("N"), struct{ X string }{X: "no"})
	if s.N != 0 {
		t.Fatalf("incompatible assign wrote %v", s.N)
	}
}

func TestRowFromRowsFacade(t *testing.T) {
	t.Parallel()

	rows := sliceRows([]string{"n"}, [][]any{{41}})
	if !rows.Next() {
		t.Fatalf("Next = false")
	}
	facade := &rowFromRows{rows: rows}
	var n int
	if err := facade.Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 41 {
		t.Fatalf("n = %d", n)
	}
}
