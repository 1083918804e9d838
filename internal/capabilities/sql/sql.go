// Package sql implements the SQL capability: a Connection with query/exec
// over a typed parameter set, backed by SQLite (default) or Postgres.
//
// Grounded on original_source/crates/wasi-sql/src/host/default_impl.rs
// (connection shape, DataType conversion) and spec.md §4.6.3's DataType
// enumeration and timestamp dual-format parsing rule.
package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

// DataType enumerates the typed SQL parameter set of spec.md §4.6.3.
type DataType int

const (
	TypeBool DataType = iota
	TypeI32
	TypeI64
	TypeU32
	TypeU64
	TypeF32
	TypeF64
	TypeString
	TypeBytes
	TypeDate
	TypeTime
	TypeTimestamp
)

// Value is a tagged parameter value. Null, when true, represents that
// type's null form regardless of the other fields.
type Value struct {
	Type  DataType
	Null  bool
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
}

// NewNull returns the null form of t.
func NewNull(t DataType) Value { return Value{Type: t, Null: true} }

// driverValue converts v into the shape database/sql expects as a query
// argument, formatting date/time/timestamp per spec.md §4.6.3's formats.
func (v Value) driverValue() any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case TypeBool:
		return v.Bool
	case TypeI32, TypeI64:
		return v.Int
	case TypeU32, TypeU64:
		return v.Uint
	case TypeF32, TypeF64:
		return v.Float
	case TypeString:
		return v.Str
	case TypeBytes:
		return v.Bytes
	case TypeDate:
		return v.Time.Format("2006-01-02")
	case TypeTime:
		return v.Time.Format("15:04:05.999999999")
	case TypeTimestamp:
		return v.Time.Format(time.RFC3339)
	default:
		return nil
	}
}

// ParseTimestamp tries RFC3339 first, then the space-separated form, per
// spec.md §4.6.3: "Timestamps are read back by trying RFC3339 first, then
// the space-separated form. Failure to parse either is a BadRequest
// equivalent."
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999", s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.BadRequest("invalid_timestamp", fmt.Sprintf("cannot parse timestamp %q", s))
}

// Statement pairs an SQL string with bound parameters, per spec.md §3's
// Connection/Statement pair.
type Statement struct {
	SQL    string
	Params []Value
}

// Rows is the result of a query.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Connection is the SQL capability object.
type Connection interface {
	Query(ctx context.Context, query string, params []Value) (*Rows, error)
	Exec(ctx context.Context, query string, params []Value) (int64, error)
	Close() error
}

func toDriverArgs(params []Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.driverValue()
	}
	return args
}
