package wiscraper

import (
	"iter"
	"time"
)

// payloadDateLayout is the date format the advanced search endpoint expects
const payloadDateLayout = "01-02-2006"

// SearchWindow is an inclusive filing-date range. Start and End are calendar
// days at midnight UTC.
type SearchWindow struct {
	Start time.Time
	End   time.Time
}

// NewSearchWindow builds a window from two dates, truncating both to the day
func NewSearchWindow(start, end time.Time) (SearchWindow, error) {
	s, e := Day(start), Day(end)
	if s.After(e) {
		return SearchWindow{}, invalidArgument("window start %s after end %s", s.Format(time.DateOnly), e.Format(time.DateOnly))
	}
	return SearchWindow{Start: s, End: e}, nil
}

// Payload renders the window in the shape of the remote filingDate filter
func (w SearchWindow) Payload() map[string]string {
	return map[string]string{
		"start": w.Start.Format(payloadDateLayout),
		"end":   w.End.Format(payloadDateLayout),
	}
}

// Days returns the number of calendar days covered by the window
func (w SearchWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w SearchWindow) String() string {
	return "[" + w.Start.Format(time.DateOnly) + ", " + w.End.Format(time.DateOnly) + "]"
}

// Day truncates t to its calendar date at midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Windows returns the consecutive windows of spanDays days covering
// [start, end]. The last window is clipped to end. An empty range yields no
// windows. The sequence holds no state and can be ranged over repeatedly.
func Windows(start, end time.Time, spanDays int) (iter.Seq[SearchWindow], error) {
	if spanDays < 1 {
		return nil, invalidArgument("span_days must be >= 1, got %d", spanDays)
	}

	first, last := Day(start), Day(end)

	return func(yield func(SearchWindow) bool) {
		for current := first; !current.After(last); {
			// clamp before adding so huge spans cannot overflow the date
			windowEnd := last
			if remaining := int(last.Sub(current).Hours() / 24); spanDays-1 < remaining {
				windowEnd = current.AddDate(0, 0, spanDays-1)
			}
			if !yield(SearchWindow{Start: current, End: windowEnd}) {
				return
			}
			current = windowEnd.AddDate(0, 0, 1)
		}
	}, nil
}

// BuildWindows is Windows collected into a slice
func BuildWindows(start, end time.Time, spanDays int) ([]SearchWindow, error) {
	seq, err := Windows(start, end, spanDays)
	if err != nil {
		return nil, err
	}

	var windows []SearchWindow
	for w := range seq {
		windows = append(windows, w)
	}
	return windows, nil
}
