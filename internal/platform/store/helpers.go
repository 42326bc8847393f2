package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	perr "dropwatch/internal/platform/errors"
)

// errMultiRow is returned by the single-row helpers when the query
// produced more than one row
var errMultiRow = errors.New("query returned more than one row")

// Exec runs a statement and hands back the raw CommandTag
func Exec(ctx context.Context, q RowQuerier, sql string, args ...any) (CommandTag, error) {
	return q.Exec(ctx, sql, args...)
}

// ExecOne runs a statement and fails unless exactly one row was touched
func ExecOne(ctx context.Context, q RowQuerier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("expected exactly one row affected")
	}
	return nil
}

// Scalar reads the first column of the first row into T
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var v T
	if err := q.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// single runs the query and maps exactly one row through read.
// No rows becomes perr.ErrNotFound; extra rows become errMultiRow
func single[T any](ctx context.Context, q RowQuerier, read func(Rows) (T, error), sql string, args ...any) (T, error) {
	var zero T
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, perr.ErrNotFound
	}
	item, err := read(rows)
	if err != nil {
		return zero, err
	}
	if rows.Next() {
		return zero, errMultiRow
	}
	return item, rows.Err()
}

// all runs the query and maps every row through read
func all[T any](ctx context.Context, q RowQuerier, read func(Rows) (T, error), sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := read(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// One maps a single row into T through a Row scanner
func One[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) (T, error) {
	return single(ctx, q, func(rs Rows) (T, error) {
		return scan(&rowFromRows{rows: rs})
	}, sql, args...)
}

// Many maps every row into []T through a Row scanner
func Many[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) ([]T, error) {
	return all(ctx, q, func(rs Rows) (T, error) {
		return scan(&rowFromRows{rows: rs})
	}, sql, args...)
}

// Map reads a single row as map[column]any
func Map(ctx context.Context, q RowQuerier, sql string, args ...any) (map[string]any, error) {
	return single(ctx, q, scanMap, sql, args...)
}

// Maps reads every row as []map[string]any
func Maps(ctx context.Context, q RowQuerier, sql string, args ...any) ([]map[string]any, error) {
	return all(ctx, q, scanMap, sql, args...)
}

// StructByName maps one row into T, matching columns against `db` tags
// (field names when untagged)
func StructByName[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	return single(ctx, q, scanStructByName[T], sql, args...)
}

// StructsByName maps all rows into []T, matching columns against `db` tags
func StructsByName[T any](ctx context.Context, q RowQuerier, sql string, args ...any) ([]T, error) {
	return all(ctx, q, scanStructByName[T], sql, args...)
}

// rowFromRows presents the current Rows position as a Row
type rowFromRows struct{ rows Rows }

func (r *rowFromRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }

// scanMap scans the current row into column name -> value
func scanMap(rows Rows) (map[string]any, error) {
	cols := rows.Columns()
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		m[c] = deref(vals[i])
	}
	return m, nil
}

// deref flattens pointer values drivers hand back for nullable columns
func deref(v any) any {
	switch x := v.(type) {
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

// scanStructByName fills a T from the current row, keyed by lowercased
// db tag or field name
func scanStructByName[T any](rows Rows) (T, error) {
	var zero T
	m, err := scanMap(rows)
	if err != nil {
		return zero, err
	}

	rt := reflect.TypeOf((*T)(nil)).Elem()
	rv := reflect.New(rt).Elem()
	byName := indexStructFields(rt)

	for name, val := range m {
		if idx, ok := byName[strings.ToLower(name)]; ok {
			assign(rv.Field(idx), val)
		}
	}

	return rv.Interface().(T), nil
}

// indexStructFields maps lowercased db tag (or field name) to field index
func indexStructFields(t reflect.Type) map[string]int {
	out := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		key := f.Tag.Get("db")
		if key == "" || key == "-" {
			key = f.Name
		}
		out[strings.ToLower(key)] = i
	}
	return out
}

// assign copies src into dst with the conversions sql drivers need
// unknown shapes are left at the zero value
func assign(dst reflect.Value, src any) {
	if !dst.CanSet() {
		return
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return
	}
	sv := reflect.ValueOf(src)

	switch {
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	case sv.Type().ConvertibleTo(dst.Type()):
		dst.Set(sv.Convert(dst.Type()))
	default:
		if b, ok := src.([]byte); ok && dst.Kind() == reflect.String {
			dst.SetString(string(b))
			return
		}
		if s, ok := src.(string); ok && dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(s))
		}
	}
}
