package domain

import (
	"fmt"
	"sort"
)

// Candle is one immutable OHLCV record at a fixed interval.
// Ts is unix seconds floored to the interval boundary. The primary key
// is (Chain, TokenAddress, IntervalSeconds, Ts).
type Candle struct {
	TokenAddress    string  `json:"token_address"`
	Chain           Chain   `json:"chain"`
	Ts              int64   `json:"ts"`
	IntervalSeconds int64   `json:"interval_seconds"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
}

// Aligned reports whether Ts sits on the interval boundary.
func (c *Candle) Aligned() bool {
	return c.IntervalSeconds > 0 && c.Ts%c.IntervalSeconds == 0
}

// Validate checks structural invariants of a single candle.
func (c *Candle) Validate() error {
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	if err := ValidateMint(c.TokenAddress, c.Chain); err != nil {
		return err
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: candle.interval_seconds: must be positive, got %d", ErrValidation, c.IntervalSeconds)
	}
	if !c.Aligned() {
		return fmt.Errorf("%w: candle.ts: %d not aligned to %ds interval", ErrValidation, c.Ts, c.IntervalSeconds)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: candle: high %g below low %g", ErrValidation, c.High, c.Low)
	}
	return nil
}

// CandleSlice is an ordered, same-interval candle range for one token.
type CandleSlice []*Candle

// SortAndDedup orders the slice by Ts ascending and collapses repeated
// timestamps, keeping the last occurrence (arrival order wins).
func (s CandleSlice) SortAndDedup() CandleSlice {
	if len(s) == 0 {
		return s
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Ts < s[j].Ts })
	out := s[:0]
	for _, c := range s {
		if n := len(out); n > 0 && out[n-1].Ts == c.Ts {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// Timestamps returns the Ts column.
func (s CandleSlice) Timestamps() []int64 {
	ts := make([]int64, len(s))
	for i, c := range s {
		ts[i] = c.Ts
	}
	return ts
}
