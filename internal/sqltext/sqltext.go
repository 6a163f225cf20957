// Package sqltext builds the fragments of composed SQL that cannot be bound
// as parameters: string literals inside table-valued functions and
// hash-derived identifiers.
package sqltext

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Literal is a single-quoted SQL string literal with embedded quotes doubled.
type Literal string

// String quotes v as a SQL string literal.
func String(v string) Literal {
	return Literal("'" + strings.ReplaceAll(v, "'", "''") + "'")
}

// List renders values as a comma-separated list of literals wrapped in
// brackets, as accepted by DuckDB list arguments.
func List(values ...string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(String(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// TableName derives a stable identifier from an arbitrary key. The key never
// appears in the identifier, so it needs no quoting.
func TableName(prefix, key string) string {
	return fmt.Sprintf("%s_%016x", prefix, murmur3.Sum64([]byte(key)))
}

// LikeContains returns a LIKE pattern matching values that contain q. The
// wildcard characters in q are escaped with a backslash; pair the pattern
// with ESCAPE '\'.
func LikeContains(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 2)
	b.WriteByte('%')
	for _, r := range q {
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
