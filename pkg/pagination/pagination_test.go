package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 12, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	out, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("empty cursor should be nil, got %v %v", c, err)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for name, value := range map[string]string{
		"not base64":   "%%%",
		"no separator": base64.RawURLEncoding.EncodeToString([]byte("12345")),
		"bad time":     base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		"bad id":       base64.RawURLEncoding.EncodeToString([]byte("12345|nope")),
	} {
		if _, err := ParseCursor(value); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSequenceCursor(t *testing.T) {
	seq, err := ParseSequence(EncodeSequence(42))
	if err != nil || seq != 42 {
		t.Fatalf("expected 42, got %d (%v)", seq, err)
	}
	if seq, err := ParseSequence(""); err != nil || seq != 0 {
		t.Fatalf("empty cursor should be 0, got %d (%v)", seq, err)
	}
	if _, err := ParseSequence(EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()})); err == nil {
		t.Fatal("time cursor must not parse as a sequence")
	}
	if _, err := ParseSequence(EncodeSequence(0)); err == nil {
		t.Fatal("sequence cursors start at 1")
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(500) != MaxLimit || NormalizeLimit(10) != 10 {
		t.Fatal("limit normalization mismatch")
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatal("buffer should add one row")
	}
}

type row struct {
	at time.Time
	id uuid.UUID
}

func rowKey(r *row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

func TestTrimReturnsCursorOfLastKeptRow(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{base.Add(3), uuid.New()}, {base.Add(2), uuid.New()}, {base.Add(1), uuid.New()}}

	page, next := Trim(rows, 2, rowKey)
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	cursor, err := ParseCursor(next)
	if err != nil {
		t.Fatalf("parse next cursor: %v", err)
	}
	if cursor.ID != rows[1].id || !cursor.CreatedAt.Equal(rows[1].at) {
		t.Fatalf("cursor should point at the last kept row, got %+v", cursor)
	}

	page, next = Trim(rows, 3, rowKey)
	if len(page) != 3 || next != "" {
		t.Fatalf("last page must not carry a cursor, got %d rows and %q", len(page), next)
	}
}
