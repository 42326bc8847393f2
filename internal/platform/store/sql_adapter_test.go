package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePgxRow implements pgx.Row with a pluggable scan
type fakePgxRow struct {
	scan func(dest ...any) error
}

func (r *fakePgxRow) Scan(dest ...any) error {
	if r.scan == nil {
		return nil
	}
	return r.scan(dest...)
}

// fakePgxRows implements pgx.Rows over a value matrix
type fakePgxRows struct {
	fields []pgconn.FieldDescription
	matrix [][]any
	pos    int
	err    error
	closed bool
}

func pgxRowsOf(cols []string, matrix [][]any) *fakePgxRows {
	fds := make([]pgconn.FieldDescription, len(cols))
	for i, c := range cols {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return &fakePgxRows{fields: fds, matrix: matrix, pos: -1}
}

func (r *fakePgxRows) Conn() *pgx.Conn                              { return nil }
func (r *fakePgxRows) Close()                                       { r.closed = true }
func (r *fakePgxRows) Err() error                                   { return r.err }
func (r *fakePgxRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakePgxRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakePgxRows) RawValues() [][]byte                          { return nil }

func (r *fakePgxRows) Next() bool {
	if r.err != nil {
		return false
	}
	r.pos++
	return r.pos < len(r.matrix)
}

func (r *fakePgxRows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.matrix) {
		return nil, errors.New("out of range")
	}
	return r.matrix[r.pos], nil
}

func (r *fakePgxRows) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.pos < 0 || r.pos >= len(r.matrix) {
		return errors.New("scan out of range")
	}
	row := r.matrix[r.pos]
	if len(row) != len(dest) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer || !dv.Elem().CanSet() {
			return errors.New("dest not a settable pointer")
		}
		sv := reflect.ValueOf(row[i])
		switch {
		case sv.IsValid() && sv.Type().AssignableTo(dv.Elem().Type()):
			dv.Elem().Set(sv)
		case sv.IsValid() && sv.Type().ConvertibleTo(dv.Elem().Type()):
			dv.Elem().Set(sv.Convert(dv.Elem().Type()))
		default:
			return errors.New("type mismatch")
		}
	}
	return nil
}

// fakePgxTx implements the slice of pgx.Tx that txQuerier touches
type fakePgxTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (f *fakePgxTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execFn != nil {
		return f.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakePgxTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, sql, args...)
	}
	return pgxRowsOf([]string{"n"}, [][]any{{1}}), nil
}

func (f *fakePgxTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRowFn != nil {
		return f.queryRowFn(ctx, sql, args...)
	}
	return &fakePgxRow{}
}

func (f *fakePgxTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakePgxTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakePgxTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (f *fakePgxTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (f *fakePgxTx) Conn() *pgx.Conn                           { return nil }
func (f *fakePgxTx) Commit(context.Context) error              { return nil }
func (f *fakePgxTx) Rollback(context.Context) error            { return nil }
func (f *fakePgxTx) Begin(ctx context.Context) (pgx.Tx, error) { return f, nil }

func TestTagString(t *testing.T) {
	t.Parallel()

	var tg tag
	tg.t = pgconn.NewCommandTag("UPDATE 4")
	if tg.String() != "UPDATE 4" {
		t.Fatalf("tag.String = %q", tg.String())
	}
}

func TestRowsAdapter(t *testing.T) {
	t.Parallel()

	fr := pgxRowsOf([]string{"bucket_id", "time_slot"}, [][]any{
		{"2026-02-18_19:00", "19:00"},
		{"2026-02-18_21:00", "21:00"},
	})
	rs := rows{r: fr}

	if cols := rs.Columns(); len(cols) != 2 || cols[0] != "bucket_id" {
		t.Fatalf("Columns = %v", cols)
	}

	var ids []string
	for rs.Next() {
		var id, slot string
		if err := rs.Scan(&id, &slot); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rs.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	rs.Close()
	if !fr.closed {
		t.Fatalf("Close must reach the pgx rows")
	}
	if !reflect.DeepEqual(ids, []string{"2026-02-18_19:00", "2026-02-18_21:00"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRowsAdapter_Errors(t *testing.T) {
	t.Parallel()

	// arity mismatch surfaces from Scan
	fr := pgxRowsOf([]string{"a", "b"}, [][]any{{1, "x"}})
	rs := rows{r: fr}
	if !rs.Next() {
		t.Fatal("Next = false")
	}
	var only int
	if err := rs.Scan(&only); err == nil {
		t.Fatal("expected arity error")
	}

	// an iterator error stops Next and shows in Err
	broken := pgxRowsOf([]string{"n"}, nil)
	broken.err = errors.New("conn dropped")
	rs2 := rows{r: broken}
	if rs2.Next() {
		t.Fatal("Next must be false on a broken iterator")
	}
	if err := rs2.Err(); err == nil || err.Error() != "conn dropped" {
		t.Fatalf("Err = %v", err)
	}
}

func TestRowAdapter(t *testing.T) {
	t.Parallel()

	r := row{r: &fakePgxRow{scan: func(dest ...any) error {
		if len(dest) != 1 {
			return errors.New("want one dest")
		}
		if p, ok := dest[0].(*string); ok {
			*p = "v-204"
			return nil
		}
		return errors.New("bad dest type")
	}}}

	var venueID string
	if err := r.Scan(&venueID); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if venueID != "v-204" {
		t.Fatalf("venueID = %q", venueID)
	}
}

func TestTxQuerier(t *testing.T) {
	t.Parallel()

	fx := &fakePgxTx{
		execFn: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if sql != "update discovery_buckets set scanned_at=$1 where bucket_id=$2" {
				return pgconn.NewCommandTag(""), errors.New("unexpected sql")
			}
			if len(args) != 2 {
				return pgconn.NewCommandTag(""), errors.New("unexpected args")
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
		queryFn: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			if sql != "select slot_id from slot_availability where bucket_id=$1" || len(args) != 1 {
				return nil, errors.New("unexpected query")
			}
			return pgxRowsOf([]string{"slot_id"}, [][]any{{"slot-9"}}), nil
		},
		queryRowFn: func(context.Context, string, ...any) pgx.Row {
			return &fakePgxRow{scan: func(dest ...any) error {
				if p, ok := dest[0].(*int); ok {
					*p = 27
					return nil
				}
				return errors.New("bad dest")
			}}
		},
	}
	q := txQuerier{tx: fx}

	ct, err := q.Exec(context.Background(),
		"update discovery_buckets set scanned_at=$1 where bucket_id=$2", "now", "2026-02-18_19:00")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ct.String() != "UPDATE 1" {
		t.Fatalf("tag = %q", ct.String())
	}

	rs, err := q.Query(context.Background(),
		"select slot_id from slot_availability where bucket_id=$1", "2026-02-18_19:00")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rs.Close()
	if !rs.Next() {
		t.Fatal("expected one row")
	}
	var slotID string
	if err := rs.Scan(&slotID); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if slotID != "slot-9" {
		t.Fatalf("slotID = %q", slotID)
	}
	if rs.Next() {
		t.Fatal("unexpected second row")
	}

	var n int
	if err := q.QueryRow(context.Background(), "select count(*)").Scan(&n); err != nil {
		t.Fatalf("QueryRow: %v", err)
	}
	if n != 27 {
		t.Fatalf("count = %d", n)
	}
}

func TestTxQuerier_ErrorPaths(t *testing.T) {
	t.Parallel()

	fx := &fakePgxTx{
		execFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag(""), errors.New("exec refused")
		},
		queryFn: func(context.Context, string, ...any) (pgx.Rows, error) {
			return nil, errors.New("query refused")
		},
		queryRowFn: func(context.Context, string, ...any) pgx.Row {
			return &fakePgxRow{scan: func(...any) error { return errors.New("scan refused") }}
		},
	}
	q := txQuerier{tx: fx}

	if _, err := q.Exec(context.Background(), "x"); err == nil {
		t.Fatal("expected Exec error")
	}
	if _, err := q.Query(context.Background(), "x"); err == nil {
		t.Fatal("expected Query error")
	}
	var n int
	if err := q.QueryRow(context.Background(), "x").Scan(&n); err == nil {
		t.Fatal("expected scan error")
	}
}
