// Package indicator holds pure windowed functions over candle slices.
// Every function is deterministic in its input slice and performs no
// I/O. Output at index i depends only on candles [i-W+1, i]; positions
// before the window fills are flagged invalid.
package indicator

import (
	"math"

	"caller-alert-lab/internal/domain"
)

// Value is one indicator output. Valid is false while the window has
// not filled yet.
type Value struct {
	V     float64
	Valid bool
}

// SMA computes the simple moving average of closes over the window.
func SMA(candles domain.CandleSlice, window int) []Value {
	out := make([]Value, len(candles))
	if window <= 0 {
		return out
	}

	var sum float64
	for i, c := range candles {
		sum += c.Close
		if i >= window {
			sum -= candles[i-window].Close
		}
		if i >= window-1 {
			out[i] = Value{V: sum / float64(window), Valid: true}
		}
	}
	return out
}

// EMA computes the exponential moving average of closes. The first
// valid output is the SMA of the initial window; later values apply
// the standard 2/(W+1) smoothing.
func EMA(candles domain.CandleSlice, window int) []Value {
	out := make([]Value, len(candles))
	if window <= 0 || len(candles) < window {
		return out
	}

	var seed float64
	for i := 0; i < window; i++ {
		seed += candles[i].Close
	}
	prev := seed / float64(window)
	out[window-1] = Value{V: prev, Valid: true}

	alpha := 2.0 / float64(window+1)
	for i := window; i < len(candles); i++ {
		prev = alpha*candles[i].Close + (1-alpha)*prev
		out[i] = Value{V: prev, Valid: true}
	}
	return out
}

// StdDev computes the rolling population standard deviation of closes.
func StdDev(candles domain.CandleSlice, window int) []Value {
	out := make([]Value, len(candles))
	if window <= 0 {
		return out
	}

	for i := window - 1; i < len(candles); i++ {
		var mean float64
		for j := i - window + 1; j <= i; j++ {
			mean += candles[j].Close
		}
		mean /= float64(window)

		var variance float64
		for j := i - window + 1; j <= i; j++ {
			d := candles[j].Close - mean
			variance += d * d
		}
		out[i] = Value{V: math.Sqrt(variance / float64(window)), Valid: true}
	}
	return out
}

// MinMax computes the rolling lowest low and highest high.
func MinMax(candles domain.CandleSlice, window int) (lows, highs []Value) {
	lows = make([]Value, len(candles))
	highs = make([]Value, len(candles))
	if window <= 0 {
		return lows, highs
	}

	for i := window - 1; i < len(candles); i++ {
		lo := candles[i-window+1].Low
		hi := candles[i-window+1].High
		for j := i - window + 2; j <= i; j++ {
			if candles[j].Low < lo {
				lo = candles[j].Low
			}
			if candles[j].High > hi {
				hi = candles[j].High
			}
		}
		lows[i] = Value{V: lo, Valid: true}
		highs[i] = Value{V: hi, Valid: true}
	}
	return lows, highs
}

// Ichimoku window lengths, the conventional 9/26/52.
const (
	TenkanWindow = 9
	KijunWindow  = 26
	SpanBWindow  = 52
)

// IchimokuLines carries the four computed Ichimoku series. Spans are
// reported at the index they are computed for, without displacement;
// the consumer shifts if it needs plotted clouds.
type IchimokuLines struct {
	Tenkan []Value
	Kijun  []Value
	SpanA  []Value
	SpanB  []Value
}

// Ichimoku computes tenkan, kijun and the two senkou spans as midpoints
// of rolling high/low extremes.
func Ichimoku(candles domain.CandleSlice) IchimokuLines {
	mid := func(window int) []Value {
		lows, highs := MinMax(candles, window)
		out := make([]Value, len(candles))
		for i := range out {
			if lows[i].Valid {
				out[i] = Value{V: (lows[i].V + highs[i].V) / 2, Valid: true}
			}
		}
		return out
	}

	lines := IchimokuLines{
		Tenkan: mid(TenkanWindow),
		Kijun:  mid(KijunWindow),
		SpanB:  mid(SpanBWindow),
	}

	lines.SpanA = make([]Value, len(candles))
	for i := range lines.SpanA {
		if lines.Tenkan[i].Valid && lines.Kijun[i].Valid {
			lines.SpanA[i] = Value{V: (lines.Tenkan[i].V + lines.Kijun[i].V) / 2, Valid: true}
		}
	}
	return lines
}

// Drawdown computes the fractional drop of each close from the running
// peak close. The first element is always valid and zero.
func Drawdown(candles domain.CandleSlice) []Value {
	out := make([]Value, len(candles))
	if len(candles) == 0 {
		return out
	}

	peak := candles[0].Close
	for i, c := range candles {
		if c.Close > peak {
			peak = c.Close
		}
		var dd float64
		if peak > 0 {
			dd = (peak - c.Close) / peak
		}
		out[i] = Value{V: dd, Valid: true}
	}
	return out
}

// MaxDrawdown reduces Drawdown to its worst value.
func MaxDrawdown(candles domain.CandleSlice) float64 {
	var worst float64
	for _, v := range Drawdown(candles) {
		if v.V > worst {
			worst = v.V
		}
	}
	return worst
}
