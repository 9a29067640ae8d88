package horizon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/apperr"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestCompute_BrusselsSummer(t *testing.T) {
	h, err := Compute(mustTime(t, "2024-06-24T09:19:23Z"), "Europe/Brussels", Resolution15m)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-25", h.TargetDay.Format("2006-01-02"))
	assert.Equal(t, mustTime(t, "2024-06-24T22:00:00Z"), h.Start)
	assert.Equal(t, mustTime(t, "2024-06-25T21:45:00Z"), h.End)
}

func TestCompute_HourlyResolution(t *testing.T) {
	h, err := Compute(mustTime(t, "2024-06-24T09:19:23Z"), "Europe/Brussels", Resolution60m)
	require.NoError(t, err)

	assert.Equal(t, mustTime(t, "2024-06-24T22:00:00Z"), h.Start)
	assert.Equal(t, mustTime(t, "2024-06-25T21:00:00Z"), h.End)
}

func TestCompute_LocalDateDiffersFromUTC(t *testing.T) {
	// 23:30 UTC is already the next day in Brussels
	h, err := Compute(mustTime(t, "2024-06-24T23:30:00Z"), "Europe/Brussels", Resolution15m)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-26", h.TargetDay.Format("2006-01-02"))
	assert.Equal(t, mustTime(t, "2024-06-25T22:00:00Z"), h.Start)
}

func TestCompute_DefaultsToUTC(t *testing.T) {
	h, err := Compute(mustTime(t, "2024-01-10T12:00:00Z"), "", Resolution15m)
	require.NoError(t, err)

	assert.Equal(t, mustTime(t, "2024-01-11T00:00:00Z"), h.Start)
	assert.Equal(t, mustTime(t, "2024-01-11T23:45:00Z"), h.End)
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute(time.Now(), "Mars/Olympus", Resolution15m)
	assert.Error(t, err)

	_, err = Compute(time.Now(), "UTC", 30*time.Minute)
	assert.Error(t, err)
}

func TestExpectedLeadtimes(t *testing.T) {
	start := mustTime(t, "2024-06-24T22:00:00Z")
	end := mustTime(t, "2024-06-25T21:45:00Z")

	lts := ExpectedLeadtimes(start, end, Resolution15m)
	require.Len(t, lts, 96)
	assert.Equal(t, start, lts[0])
	assert.Equal(t, end, lts[95])

	assert.Len(t, ExpectedLeadtimes(start, mustTime(t, "2024-06-25T21:00:00Z"), Resolution60m), 24)
	assert.Nil(t, ExpectedLeadtimes(end, start, Resolution15m))
}

func TestCheck(t *testing.T) {
	start := mustTime(t, "2024-06-24T22:00:00Z")
	expected := ExpectedLeadtimes(start, start.Add(time.Hour), Resolution15m) // 5 slots

	t.Run("exact set", func(t *testing.T) {
		c := Check(expected, expected)
		assert.True(t, c.OK())
		assert.NoError(t, c.Err())
	})

	t.Run("one missing", func(t *testing.T) {
		c := Check(expected, expected[1:])
		assert.Equal(t, []time.Time{expected[0]}, c.Missing)
		assert.Empty(t, c.Extra)
		assert.True(t, apperr.HasCode(c.Err(), apperr.CodeIncompleteSubmission))
	})

	t.Run("one extra", func(t *testing.T) {
		extra := start.Add(5 * time.Hour)
		c := Check(expected, append(append([]time.Time{}, expected...), extra))
		assert.Empty(t, c.Missing)
		assert.Equal(t, []time.Time{extra}, c.Extra)
		assert.True(t, apperr.HasCode(c.Err(), apperr.CodeIncorrectSubmission))
	})

	t.Run("both reported", func(t *testing.T) {
		extra := start.Add(time.Minute)
		provided := append(append([]time.Time{}, expected[1:]...), extra)
		c := Check(expected, provided)
		assert.Equal(t, []time.Time{expected[0]}, c.Missing)
		assert.Equal(t, []time.Time{extra}, c.Extra)

		e, ok := apperr.As(c.Err())
		require.True(t, ok)
		assert.Equal(t, apperr.CodeIncompleteSubmission, e.Code)
		assert.Equal(t, c, e.Details)
	})

	t.Run("duplicate is extra", func(t *testing.T) {
		provided := append(append([]time.Time{}, expected...), expected[2])
		c := Check(expected, provided)
		assert.Empty(t, c.Missing)
		assert.Equal(t, []time.Time{expected[2]}, c.Extra)
	})

	t.Run("non-UTC input matches", func(t *testing.T) {
		loc, err := time.LoadLocation("Europe/Brussels")
		require.NoError(t, err)
		local := make([]time.Time, len(expected))
		for i, ts := range expected {
			local[i] = ts.In(loc)
		}
		assert.True(t, Check(expected, local).OK())
	})
}
