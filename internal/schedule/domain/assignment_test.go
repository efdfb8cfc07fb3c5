package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got, err := ParseDate(" 2026-02-28 ", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, loc), got)

	for _, bad := range []string{"", "2026-02-30", "28/02/2026", "2026-2-28"} {
		_, err := ParseDate(bad, loc)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}
