package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const sequencePrefix = "seq|"

var errInvalidCursor = errors.New("invalid cursor format")

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row on a page. Lists are
// ordered newest first with the id breaking created_at ties.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so Trim can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Keyset applies the (created_at, id) DESC ordering, resumes after cursor
// when one is given, and fetches limit rows.
func Keyset(q *gorm.DB, cursor *Cursor, limit int) *gorm.DB {
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	return q.Order("created_at DESC").Order("id DESC").Limit(limit)
}

// Trim cuts a buffered result set down to limit rows. When rows were left
// over it returns the cursor of the last kept row.
func Trim[T any](rows []T, limit int, key func(*T) Cursor) ([]T, string) {
	if len(rows) <= limit || limit <= 0 {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(key(&rows[limit-1]))
}

func EncodeCursor(cursor Cursor) string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes an EncodeCursor value. Empty input means the first page.
func ParseCursor(value string) (*Cursor, error) {
	decoded, err := decode(value)
	if err != nil || decoded == "" {
		return nil, err
	}
	nanos, id, ok := strings.Cut(decoded, "|")
	if !ok {
		return nil, errInvalidCursor
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{CreatedAt: time.Unix(0, ts).UTC(), ID: parsedID}, nil
}

// EncodeSequence builds a cursor for append-only streams ordered by a
// monotonically increasing sequence.
func EncodeSequence(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sequencePrefix + strconv.FormatInt(seq, 10)))
}

// ParseSequence decodes an EncodeSequence value. Empty input yields 0.
func ParseSequence(value string) (int64, error) {
	decoded, err := decode(value)
	if err != nil || decoded == "" {
		return 0, err
	}
	raw, ok := strings.CutPrefix(decoded, sequencePrefix)
	if !ok {
		return 0, errInvalidCursor
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq <= 0 {
		return 0, errors.New("invalid cursor sequence")
	}
	return seq, nil
}

func decode(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("decode cursor: %w", err)
	}
	return string(decoded), nil
}
