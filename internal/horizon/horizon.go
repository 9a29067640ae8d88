// Package horizon computes the day-ahead forecast horizon of a challenge and
// checks forecast point sets against its expected leadtimes.
package horizon

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/predico/internal/apperr"
)

// Supported forecast resolutions
const (
	Resolution15m = 15 * time.Minute
	Resolution60m = 60 * time.Minute
)

// Horizon is the forecast window of one challenge
type Horizon struct {
	TargetDay time.Time // midnight UTC of the local calendar date
	Start     time.Time // UTC
	End       time.Time // UTC, inclusive
}

// ValidResolution reports whether res is 15 or 60 minutes
func ValidResolution(res time.Duration) bool {
	return res == Resolution15m || res == Resolution60m
}

// Compute derives the horizon for a session opened at openTS on a resource
// in time zone tz. The target day is the local calendar day after openTS;
// the window runs from 00:00 to the last slot before midnight local time.
func Compute(openTS time.Time, tz string, res time.Duration) (Horizon, error) {
	if !ValidResolution(res) {
		return Horizon{}, fmt.Errorf("unsupported resolution %s", res)
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Horizon{}, fmt.Errorf("load time zone %q: %w", tz, err)
	}

	y, m, d := openTS.In(loc).Date()
	lastSlot := int((24*time.Hour - res) / time.Minute)

	start := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, lastSlot, 0, 0, loc)
	ty, tm, td := start.Date()

	return Horizon{
		TargetDay: time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC),
		Start:     start.UTC(),
		End:       end.UTC(),
	}, nil
}

// ExpectedLeadtimes returns every slot from start to end inclusive, in UTC
func ExpectedLeadtimes(start, end time.Time, res time.Duration) []time.Time {
	if res <= 0 || end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, int(end.Sub(start)/res)+1)
	for t := start.UTC(); !t.After(end); t = t.Add(res) {
		out = append(out, t)
	}
	return out
}

// Completeness is the difference between an expected and a provided set
type Completeness struct {
	Missing []time.Time `json:"missing,omitempty"`
	Extra   []time.Time `json:"extra,omitempty"`
}

// OK reports whether the provided set equals the expected one
func (c Completeness) OK() bool {
	return len(c.Missing) == 0 && len(c.Extra) == 0
}

// Check compares provided against expected. A datetime provided twice is
// reported as extra.
func Check(expected, provided []time.Time) Completeness {
	want := make(map[int64]bool, len(expected))
	for _, t := range expected {
		want[t.UnixNano()] = true
	}

	var c Completeness
	seen := make(map[int64]bool, len(provided))
	for _, t := range provided {
		key := t.UnixNano()
		if seen[key] || !want[key] {
			c.Extra = append(c.Extra, t.UTC())
			seen[key] = true
			continue
		}
		seen[key] = true
	}
	for _, t := range expected {
		if !seen[t.UnixNano()] {
			c.Missing = append(c.Missing, t.UTC())
		}
	}

	sortTimes(c.Missing)
	sortTimes(c.Extra)
	return c
}

// Err converts a failed check into the service error. Missing leadtimes take
// precedence for the code; both sets are always reported.
func (c Completeness) Err() error {
	switch {
	case len(c.Missing) > 0:
		return apperr.NewWithDetails(apperr.KindValidationFailed, apperr.CodeIncompleteSubmission,
			fmt.Sprintf("submission is missing %d leadtimes", len(c.Missing)), c)
	case len(c.Extra) > 0:
		return apperr.NewWithDetails(apperr.KindValidationFailed, apperr.CodeIncorrectSubmission,
			fmt.Sprintf("submission has %d unexpected leadtimes", len(c.Extra)), c)
	default:
		return nil
	}
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
