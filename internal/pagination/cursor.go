// Package pagination pages through a session's conversation history.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor points at the last turn of a page. CreatedAt must still match the
// turn at Position, otherwise the history was reset after the cursor was
// issued.
type Cursor struct {
	Position  int
	CreatedAt time.Time
}

// PageResult is one page of items plus the cursor for the next one.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Encode renders the cursor for a query string.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%d", c.Position, c.CreatedAt.UnixNano())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by Encode. An empty string is the
// first page and decodes to nil.
func DecodeCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	pos, nanos, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	position, err := strconv.Atoi(pos)
	if err != nil || position < 1 {
		return nil, ErrInvalidCursor
	}
	unix, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Position: position, CreatedAt: time.Unix(0, unix).UTC()}, nil
}
