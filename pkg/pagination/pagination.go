// Package pagination implements keyset paging over identity columns. A
// cursor is the opaque form of the last id a caller has seen.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorVersion = "v1:"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is what list endpoints accept from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for
// anything non-positive.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FetchLimit is the row count to ask storage for: one past the page size,
// so Trim can tell whether another page exists.
func FetchLimit(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(lastID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorVersion + strconv.FormatInt(lastID, 10)))
}

// AfterID decodes cursor into the id to resume after. A blank cursor
// starts from the beginning and yields 0.
func AfterID(cursor string) (int64, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	digits, ok := strings.CutPrefix(string(raw), cursorVersion)
	if !ok {
		return 0, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCursor
	}
	return id, nil
}

// Trim cuts rows fetched with FetchLimit down to the page size and returns
// the cursor of the following page, or "" on the last page.
func Trim[T any](rows []T, limit int, idOf func(T) int64) ([]T, string) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, EncodeCursor(idOf(rows[size-1]))
}
