// Package schedule computes free time windows inside a working day from
// heterogeneous occupied-time sources (class periods and task time ranges).
//
// Parsing is deliberately tolerant: every Parse function returns (Interval, false)
// for malformed input and callers drop those entries, so partial data still
// produces a usable answer.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Minute is a time of day expressed as minutes since midnight.
type Minute int

// Clock builds a Minute from an hour and minute.
func Clock(hour, minute int) Minute { return Minute(hour*60 + minute) }

// String renders the minute as "HH:MM".
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// MarshalText encodes the minute as "HH:MM" so windows serialize as clock times.
func (m Minute) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText accepts "HH:MM".
func (m *Minute) UnmarshalText(b []byte) error {
	v, ok := ParseClock(string(b))
	if !ok {
		return fmt.Errorf("schedule: invalid clock time %q", string(b))
	}
	*m = v
	return nil
}

// Add returns the minute shifted by d minutes.
func (m Minute) Add(d int) Minute { return m + Minute(d) }

// EndOfDay is 24:00, the exclusive upper bound of a day.
const EndOfDay Minute = 24 * 60

// Interval is a half-open [Start, End) span within one day.
type Interval struct {
	Start Minute
	End   Minute
}

// Minutes is the length of the interval.
func (iv Interval) Minutes() int { return int(iv.End - iv.Start) }

func (iv Interval) String() string { return iv.Start.String() + "-" + iv.End.String() }

// Class periods start at 08:00 and each period is two hours long.
const (
	periodOrigin = 8 * 60
	periodLength = 2 * 60
)

// ParseClock parses "HH:MM" (surrounding spaces allowed).
func ParseClock(s string) (Minute, bool) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, false
	}
	return Clock(h, m), true
}

// ParseTaskRange parses a task time range "HH:MM-HH:MM". Empty, inverted or
// zero-length ranges are rejected.
func ParseTaskRange(s string) (Interval, bool) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Interval{}, false
	}
	start, ok := ParseClock(a)
	if !ok {
		return Interval{}, false
	}
	end, ok := ParseClock(b)
	if !ok || end <= start {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// ParsePeriods projects a class period range "a-b" onto the clock: period p
// starts at 08:00 + 2h*(p-1) and the range ends at 08:00 + 2h*b. A single
// period "a" is accepted as "a-a". Projections that are inverted or leave the
// day are malformed.
func ParsePeriods(s string) (Interval, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Interval{}, false
	}
	a, b, found := strings.Cut(s, "-")
	if !found {
		b = a
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil || first < 1 {
		return Interval{}, false
	}
	last, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil || last < first {
		return Interval{}, false
	}
	start := Minute(periodOrigin + (first-1)*periodLength)
	end := Minute(periodOrigin + last*periodLength)
	if end > EndOfDay {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Merge sorts intervals by start and folds overlapping or touching intervals
// into a minimal covering set. The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := append([]Interval(nil), ivs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Window is one free span reported to callers.
type Window struct {
	Start           Minute `json:"start"`
	End             Minute `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Result is the outcome of a free-time query.
type Result struct {
	Windows          []Window
	TotalFreeMinutes int
	OccupiedBlocks   int
}

// Resolver finds free windows between DayStart and DayEnd.
type Resolver struct {
	DayStart Minute
	DayEnd   Minute
}

// DefaultResolver covers the 08:00-22:00 working day.
var DefaultResolver = Resolver{DayStart: Clock(8, 0), DayEnd: Clock(22, 0)}

// Resolve merges the occupied intervals and walks them left to right from
// DayStart, emitting every gap of at least minMinutes. Gaps are clamped to the
// day window, so occupation before DayStart or after DayEnd never produces a
// window outside it. OccupiedBlocks counts the merged blocks.
func (r Resolver) Resolve(occupied []Interval, minMinutes int) Result {
	merged := Merge(occupied)
	res := Result{OccupiedBlocks: len(merged), Windows: []Window{}}
	emit := func(start, end Minute) {
		if end > r.DayEnd {
			end = r.DayEnd
		}
		if end <= start {
			return
		}
		d := int(end - start)
		if d < minMinutes {
			return
		}
		res.Windows = append(res.Windows, Window{Start: start, End: end, DurationMinutes: d})
		res.TotalFreeMinutes += d
	}
	cursor := r.DayStart
	for _, iv := range merged {
		if cursor < iv.Start {
			emit(cursor, iv.Start)
		}
		if iv.End > cursor {
			cursor = iv.End
		}
	}
	if cursor < r.DayEnd {
		emit(cursor, r.DayEnd)
	}
	return res
}

// Pick selects a window that can hold duration minutes. With a preferred start
// it returns the long-enough window whose start is closest to it (earliest on
// ties); otherwise, or if nothing matched, the first long-enough window.
func Pick(windows []Window, duration int, preferred *Minute) (Window, bool) {
	if preferred != nil {
		best, bestDiff, found := Window{}, 0, false
		for _, w := range windows {
			if w.DurationMinutes < duration {
				continue
			}
			diff := int(w.Start - *preferred)
			if diff < 0 {
				diff = -diff
			}
			if !found || diff < bestDiff {
				best, bestDiff, found = w, diff, true
			}
		}
		if found {
			return best, true
		}
	}
	for _, w := range windows {
		if w.DurationMinutes >= duration {
			return w, true
		}
	}
	return Window{}, false
}
