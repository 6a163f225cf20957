package engine

import (
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/marcboeker/go-duckdb"
)

// Result is a fully materialized statement result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Index returns the position of a column, or -1.
func (r *Result) Index(column string) int {
	if r == nil {
		return -1
	}
	for i, c := range r.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

func collect(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Scalar returns the normalized value at (row, column), or nil when either
// is out of range.
func Scalar(r *Result, row int, column string) any {
	idx := r.Index(column)
	if idx < 0 || row < 0 || row >= r.Len() {
		return nil
	}
	return Normalize(r.Rows[row][idx])
}

// Normalize converts engine-specific representations into plain Go values:
// typed numeric slices yield their first element (0 when empty), 64- and
// 128-bit integers yield int64 (float64 outside its range), decimals yield
// float64, byte slices yield string, and other slices yield their first
// element (nil when empty).
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case duckdb.Decimal:
		return x.Float64()
	case *duckdb.Decimal:
		if x == nil {
			return nil
		}
		return x.Float64()
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case float32:
		return float64(x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			if isNumericKind(rv.Type().Elem().Kind()) {
				return int64(0)
			}
			return nil
		}
		return Normalize(rv.Index(0).Interface())
	}
	return v
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Int64 returns the value at (row, column) as an int64, 0 when absent.
func Int64(r *Result, row int, column string) int64 {
	return ToInt64(Scalar(r, row, column))
}

// ToInt64 converts a normalized value to int64.
func ToInt64(v any) int64 {
	switch x := Normalize(v).(type) {
	case int64:
		return x
	case float64:
		return int64(math.Round(x))
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(x, 64)
			if ferr != nil {
				return 0
			}
			return int64(math.Round(f))
		}
		return n
	}
	return 0
}

// Float64 returns the value at (row, column) as a float64, 0 when absent.
func Float64(r *Result, row int, column string) float64 {
	switch x := Scalar(r, row, column).(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}

// String returns the value at (row, column) formatted as a string, "" when absent.
func String(r *Result, row int, column string) string {
	return ToString(Scalar(r, row, column))
}

// ToString formats a normalized value.
func ToString(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
