package candles

import (
	"fmt"
	"strings"

	"caller-alert-lab/internal/domain"
)

// GapPolicy selects how missing candles inside a requested range are
// handled.
type GapPolicy string

const (
	// PolicyStrict fails the request with the gap list.
	PolicyStrict GapPolicy = "strict"

	// PolicyBestEffort returns the dense sequence unchanged and lets
	// the consumer skip gaps.
	PolicyBestEffort GapPolicy = "best_effort"
)

// Gap is one contiguous run of missing candle timestamps, inclusive.
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ExpectedTimestamps lists every aligned timestamp the range should
// contain: all ts in [from, to] with ts divisible by the interval.
func ExpectedTimestamps(from, to, intervalSeconds int64) []int64 {
	if intervalSeconds <= 0 || to < from {
		return nil
	}
	first := from
	if rem := first % intervalSeconds; rem != 0 {
		first += intervalSeconds - rem
	}
	var out []int64
	for ts := first; ts <= to; ts += intervalSeconds {
		out = append(out, ts)
	}
	return out
}

// FindGaps computes the set-difference between the expected timestamps
// of [from, to] and the timestamps present in candles, compressed into
// contiguous ranges. The candles must be sorted by ts ASC.
func FindGaps(candles domain.CandleSlice, from, to, intervalSeconds int64) []Gap {
	expected := ExpectedTimestamps(from, to, intervalSeconds)
	if len(expected) == 0 {
		return nil
	}

	present := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		present[c.Ts] = struct{}{}
	}

	var gaps []Gap
	for _, ts := range expected {
		if _, ok := present[ts]; ok {
			continue
		}
		if n := len(gaps); n > 0 && gaps[n-1].To+intervalSeconds == ts {
			gaps[n-1].To = ts
			continue
		}
		gaps = append(gaps, Gap{From: ts, To: ts})
	}
	return gaps
}

// GapError reports an incomplete range under the strict policy.
type GapError struct {
	Gaps []Gap
}

func (e *GapError) Error() string {
	parts := make([]string, len(e.Gaps))
	for i, g := range e.Gaps {
		parts[i] = fmt.Sprintf("[%d, %d]", g.From, g.To)
	}
	return fmt.Sprintf("candle range incomplete: %d gap(s): %s", len(e.Gaps), strings.Join(parts, ", "))
}
