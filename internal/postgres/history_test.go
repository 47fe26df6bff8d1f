package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *int:
			*p = r.values[i].(int)
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, clampLimit(0))
	assert.Equal(t, defaultHistoryLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxHistoryLimit, clampLimit(10_000))
}

func TestScanRecord(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	rec, err := scanRecord(fakeRow{values: []any{int64(9), "kof98", "KOF 98", at, 250, 900, true, int64(1500)}})
	require.NoError(t, err)

	assert.Equal(t, int64(9), rec.ID)
	assert.Equal(t, "kof98", rec.GameID)
	assert.Equal(t, at, rec.FetchedAt)
	assert.Equal(t, 900, rec.TotalAvailable)
	assert.True(t, rec.Partial)
	assert.Equal(t, int64(1500), rec.DurationMs)
}

func TestScanRecordErrors(t *testing.T) {
	_, err := scanRecord(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	_, err = scanRecord(fakeRow{err: errors.New("bad column")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning fetch record")
}
