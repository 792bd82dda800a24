package experiment

import (
	"math"

	"caller-alert-lab/internal/domain"
)

// Aggregate folds per-alert summaries into the run-level summary.
// Totals (pnl, fees, trades, reentries) sum; rate and duration metrics
// average over alerts that actually traded. Profit factor, sharpe and
// sortino come from the per-alert return distribution and stay nil
// when the denominator degenerates, never zero-filled.
func Aggregate(results []*alertResult) domain.MetricsSummary {
	var out domain.MetricsSummary

	var traded, wins int
	var holdingSum float64
	var grossProfit, grossLoss float64
	var returns []float64
	for _, r := range results {
		s := r.summary
		out.FinalPnl += s.FinalPnl
		out.Fees += s.Fees
		out.TradeCount += s.TradeCount
		out.ReentryCount += s.ReentryCount
		if s.MaxDrawdown > out.MaxDrawdown {
			out.MaxDrawdown = s.MaxDrawdown
		}
		if s.TradeCount == 0 {
			continue
		}
		traded++
		holdingSum += s.HoldingMinutes
		returns = append(returns, s.FinalPnl)
		if s.FinalPnl > 0 {
			wins++
			grossProfit += s.FinalPnl
		} else {
			grossLoss += -s.FinalPnl
		}
	}
	if traded == 0 {
		return out
	}

	out.WinRate = float64(wins) / float64(traded)
	out.HoldingMinutes = holdingSum / float64(traded)

	// Gross profit over gross loss; undefined without any loss.
	if grossLoss > 0 {
		v := grossProfit / grossLoss
		out.ProfitFactor = &v
	}

	mean := out.FinalPnl / float64(traded)
	out.AvgReturn = mean

	if len(returns) > 1 {
		var variance, downside float64
		var downs int
		for _, r := range returns {
			d := r - mean
			variance += d * d
			if r < 0 {
				downside += r * r
				downs++
			}
		}
		if std := math.Sqrt(variance / float64(len(returns))); std > 0 {
			v := mean / std
			out.Sharpe = &v
		}
		if downs > 0 {
			if dstd := math.Sqrt(downside / float64(len(returns))); dstd > 0 {
				v := mean / dstd
				out.Sortino = &v
			}
		}
	}
	return out
}
