package sim

import (
	"math"
	"math/rand"

	"caller-alert-lab/internal/domain"
)

// execState bundles the per-alert RNG with the cost and execution
// models. The RNG draw order per fill is fixed: failure, partial fill,
// priority fee, latency. Changing it changes every seeded result, so
// it is part of the engine version.
type execState struct {
	rng  *rand.Rand
	exec *domain.ExecutionModel
	cost costParams

	// volume stats over the whole window, for slippage z-scores.
	volMean float64
	volStd  float64
}

type costParams struct {
	baseFee       float64
	priorityMin   float64
	priorityMax   float64
	tradingFeePct float64
	slippage      domain.SlippageModel
}

func newExecState(rng *rand.Rand, strategy *domain.StrategyConfig, exec *domain.ExecutionModel, cost *domain.CostModel, candles domain.CandleSlice) *execState {
	cp := costParams{
		baseFee:       strategy.Costs.BaseFee,
		priorityMin:   strategy.Costs.PriorityFeeRange.Min,
		priorityMax:   strategy.Costs.PriorityFeeRange.Max,
		tradingFeePct: strategy.Costs.TradingFeePct,
		slippage:      strategy.Costs.SlippageModel,
	}
	// A run-level cost model supersedes the strategy's fee leg.
	if cost != nil {
		cp.baseFee = cost.BaseFee
		cp.priorityMin = cost.PriorityFeeRange.Min
		cp.priorityMax = cost.PriorityFeeRange.Max
		cp.tradingFeePct = cost.TradingFeePct
	}
	if exec != nil {
		cp.slippage = exec.Slippage
	}

	s := &execState{rng: rng, exec: exec, cost: cp}
	s.volMean, s.volStd = volumeStats(candles)
	return s
}

func volumeStats(candles domain.CandleSlice) (mean, std float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	for _, c := range candles {
		mean += c.Volume
	}
	mean /= float64(len(candles))

	var variance float64
	for _, c := range candles {
		d := c.Volume - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(candles)))
}

// fillFails draws the failure gate for entry and target fills. Stop
// fills never fail; the protective exit is assumed to land.
func (s *execState) fillFails() bool {
	if s.exec == nil || s.exec.FailureRate <= 0 {
		return false
	}
	return s.rng.Float64() < s.exec.FailureRate
}

// partialFill draws the partial-fill gate for target fills.
func (s *execState) partialFill() bool {
	if s.exec == nil || s.exec.PartialFillRate <= 0 {
		return false
	}
	return s.rng.Float64() < s.exec.PartialFillRate
}

// flatFee draws the flat per-fill fee: base plus a uniform priority
// fee from the configured range.
func (s *execState) flatFee() float64 {
	fee := s.cost.baseFee
	if spread := s.cost.priorityMax - s.cost.priorityMin; spread > 0 {
		fee += s.cost.priorityMin + s.rng.Float64()*spread
	} else {
		fee += s.cost.priorityMin
	}
	return fee
}

// tradingFee is the percentage fee on notional.
func (s *execState) tradingFee(price, size float64) float64 {
	return s.cost.tradingFeePct * price * size
}

// latencyMs draws the simulated confirmation delay.
func (s *execState) latencyMs() float64 {
	if s.exec == nil {
		return 0
	}
	l := s.exec.Latency
	switch l.Distribution {
	case domain.LatencyDistNormal:
		d := l.MeanMs + l.StddevMs*s.rng.NormFloat64()
		if d < 0 {
			return 0
		}
		return d
	case domain.LatencyDistFixed:
		return l.MeanMs
	default:
		return 0
	}
}

// slip computes the adverse price adjustment fraction for a fill on
// the given candle. The volume z-score scales the volume term.
func (s *execState) slip(c *domain.Candle) float64 {
	m := s.cost.slippage
	if m.Base == 0 && m.VolumeFactor == 0 {
		return 0
	}
	var z float64
	if s.volStd > 0 {
		z = (c.Volume - s.volMean) / s.volStd
	}
	adj := m.Base + m.VolumeFactor*z
	if adj < 0 {
		return 0
	}
	return adj
}

// buyPrice adjusts an entry fill adversely upward.
func (s *execState) buyPrice(price float64, c *domain.Candle) float64 {
	return price * (1 + s.slip(c))
}

// sellPrice adjusts an exit fill adversely downward.
func (s *execState) sellPrice(price float64, c *domain.Candle) float64 {
	return price * (1 - s.slip(c))
}
