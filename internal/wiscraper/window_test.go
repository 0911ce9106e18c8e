package wiscraper

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildWindows_SpanSeven(t *testing.T) {
	windows, err := BuildWindows(date("2025-01-01"), date("2025-01-10"), 7)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	assert.Equal(t, SearchWindow{Start: date("2025-01-01"), End: date("2025-01-07")}, windows[0])
	assert.Equal(t, SearchWindow{Start: date("2025-01-08"), End: date("2025-01-10")}, windows[1])
}

func TestBuildWindows_SingleDay(t *testing.T) {
	start, end := date("2024-02-25"), date("2024-03-02")
	windows, err := BuildWindows(start, end, 1)
	require.NoError(t, err)

	// 2024 is a leap year: Feb 25..Mar 2 is 7 days
	require.Len(t, windows, 7)
	for _, w := range windows {
		assert.Equal(t, w.Start, w.End)
		assert.Equal(t, 1, w.Days())
	}
}

func TestBuildWindows_StartAfterEnd(t *testing.T) {
	windows, err := BuildWindows(date("2025-02-01"), date("2025-01-01"), 7)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestBuildWindows_InvalidSpan(t *testing.T) {
	for _, span := range []int{0, -1, -30} {
		windows, err := BuildWindows(date("2025-01-01"), date("2025-01-10"), span)
		assert.ErrorIs(t, err, ErrInvalidArgument, "span %d", span)
		assert.Nil(t, windows)
	}
}

func TestWindows_CoverRangeExactly(t *testing.T) {
	ranges := []struct{ start, end string }{
		{"2025-01-01", "2025-01-01"},
		{"2025-01-01", "2025-12-31"},
		{"2023-12-20", "2024-03-05"},
		{"2025-03-09", "2025-03-10"},
	}

	for _, r := range ranges {
		for span := 1; span <= 40; span++ {
			start, end := date(r.start), date(r.end)
			windows, err := BuildWindows(start, end, span)
			require.NoError(t, err)
			require.NotEmpty(t, windows)

			assert.Equal(t, start, windows[0].Start)
			assert.Equal(t, end, windows[len(windows)-1].End)

			for i, w := range windows {
				assert.False(t, w.Start.After(w.End))
				assert.LessOrEqual(t, w.Days(), span)
				if i == 0 {
					continue
				}
				prev := windows[i-1]
				assert.True(t, w.Start.After(prev.Start), "starts strictly increase")
				assert.False(t, w.End.Before(prev.End), "ends non-decreasing")
				assert.Equal(t, prev.End.AddDate(0, 0, 1), w.Start, "contiguous without overlap")
				assert.Equal(t, span, prev.Days(), "only the final window is clipped")
			}
		}
	}
}

func TestWindows_Restartable(t *testing.T) {
	seq, err := Windows(date("2025-01-01"), date("2025-01-31"), 10)
	require.NoError(t, err)

	var first, second []SearchWindow
	for w := range seq {
		first = append(first, w)
	}
	for w := range seq {
		second = append(second, w)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestWindows_EarlyBreak(t *testing.T) {
	seq, err := Windows(date("2025-01-01"), date("2025-12-31"), 1)
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestWindows_TruncatesTimeOfDay(t *testing.T) {
	start := time.Date(2025, 1, 1, 17, 30, 0, 0, time.UTC)
	windows, err := BuildWindows(start, date("2025-01-02"), 7)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, date("2025-01-01"), windows[0].Start)
}

func TestSearchWindow_Payload(t *testing.T) {
	w, err := NewSearchWindow(date("2025-01-08"), date("2025-01-10"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"start": "01-08-2025", "end": "01-10-2025"}, w.Payload())
	assert.Equal(t, "[2025-01-08, 2025-01-10]", w.String())

	_, err = NewSearchWindow(date("2025-01-10"), date("2025-01-08"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWindows_HugeSpanYieldsOneWindow(t *testing.T) {
	start, end := date("2025-01-15"), date("2025-02-10")
	for _, span := range []int{math.MaxInt, math.MaxInt - 1, 1 << 50, 1 << 40} {
		seq, err := Windows(start, end, span)
		require.NoError(t, err)

		var windows []SearchWindow
		for w := range seq {
			windows = append(windows, w)
			if len(windows) > 5 {
				break
			}
		}
		require.Len(t, windows, 1, "span %d", span)
		assert.Equal(t, SearchWindow{Start: start, End: end}, windows[0], "span %d", span)
	}
}

func TestWindows_SpanEqualToRange(t *testing.T) {
	// 2025-01-01..2025-01-07 is exactly seven days
	windows, err := BuildWindows(date("2025-01-01"), date("2025-01-07"), 7)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, date("2025-01-07"), windows[0].End)

	windows, err = BuildWindows(date("2025-01-01"), date("2025-01-08"), 7)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, SearchWindow{Start: date("2025-01-08"), End: date("2025-01-08")}, windows[1])
}
