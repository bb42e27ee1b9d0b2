package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeek_Monday(t *testing.T) {
	// 2025-03-13 is a Thursday.
	thu := time.Date(2025, 3, 13, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", FormatDateStr(StartOfWeek(thu)))

	sun := time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", FormatDateStr(StartOfWeek(sun)))

	mon := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-17", FormatDateStr(StartOfWeek(mon)))
}

func TestIsSameWeekAndDay(t *testing.T) {
	mon := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	wed := time.Date(2025, 3, 12, 20, 0, 0, 0, time.UTC)
	nextMon := time.Date(2025, 3, 17, 8, 0, 0, 0, time.UTC)

	assert.True(t, IsSameWeek(mon, wed))
	assert.False(t, IsSameWeek(wed, nextMon))
	assert.False(t, IsSameDay(mon, wed))
	assert.True(t, IsSameDay(mon, mon.Add(10*time.Hour)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 4, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, DaysBetween(a, b))
	assert.Equal(t, 3, DaysBetween(b, a))
}

func TestSetZone_ShiftsWeekBoundary(t *testing.T) {
	t.Cleanup(func() { SetZone(time.UTC) })

	SetZone(time.FixedZone("COT", -5*60*60))
	// 2025-03-10 03:00 UTC is still Sunday evening at UTC-5.
	at := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-03", FormatDateStr(StartOfWeek(at)))
}

func TestLoadZone(t *testing.T) {
	t.Cleanup(func() { SetZone(time.UTC) })

	require.NoError(t, LoadZone(""))
	assert.Equal(t, time.UTC, Zone())
	assert.Error(t, LoadZone("Not/AZone"))
}
