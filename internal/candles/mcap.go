package candles

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/marketdata"
)

// McapSource tags which rung of the fallback chain produced an entry
// market cap, so downstream analyses can filter by provenance.
type McapSource string

const (
	McapLaunchpadSupply McapSource = "launchpad_supply"
	McapAPI             McapSource = "api"
	McapRegex           McapSource = "regex"
	McapInferred        McapSource = "inferred"
	McapNone            McapSource = "none"
)

// McapResolver derives the market cap at alert time. The chain is
// pump/bonk supply math, then API metadata, then regex extraction from
// the raw message, then inference from current price and current mcap
// as the last resort. When every rung fails the result is nil, never
// a guess.
type McapResolver struct {
	api marketdata.Port
}

// NewMcapResolver creates a resolver over the market data port.
func NewMcapResolver(api marketdata.Port) *McapResolver {
	return &McapResolver{api: api}
}

// Resolve returns the entry market cap for the alert and its source.
func (r *McapResolver) Resolve(ctx context.Context, alert *domain.Alert) (*float64, McapSource) {
	if alert.AlertMcap != nil {
		// Already carried by the alert; treat as extracted upstream.
		v := *alert.AlertMcap
		return &v, McapRegex
	}

	// Launchpad tokens have a fixed 10^9 supply, no API call needed.
	if domain.HasLaunchpadSuffix(alert.TokenAddress) && alert.AlertPrice != nil && *alert.AlertPrice > 0 {
		v := *alert.AlertPrice * domain.PumpBonkSupply
		return &v, McapLaunchpadSupply
	}

	meta, err := r.api.FetchTokenMeta(ctx, alert.TokenAddress, alert.Chain)
	if err != nil {
		meta = nil
	}
	if meta != nil {
		if alert.AlertPrice != nil && *alert.AlertPrice > 0 && meta.Supply != nil && *meta.Supply > 0 {
			v := *alert.AlertPrice * *meta.Supply
			return &v, McapAPI
		}
		if meta.MarketCap != nil && *meta.MarketCap > 0 && alert.AlertPrice == nil {
			v := *meta.MarketCap
			return &v, McapAPI
		}
	}

	// A figure stated in the message outranks anything derived.
	if v, ok := ExtractMcap(alert.RawPayload); ok {
		return &v, McapRegex
	}

	// Inference from current price and current mcap scales the present
	// cap back to the alert price. Last resort before giving up.
	if meta != nil && alert.AlertPrice != nil && *alert.AlertPrice > 0 &&
		meta.MarketCap != nil && *meta.MarketCap > 0 &&
		meta.PriceUSD != nil && *meta.PriceUSD > 0 {
		v := *meta.MarketCap * (*alert.AlertPrice / *meta.PriceUSD)
		return &v, McapInferred
	}

	return nil, McapNone
}

// mcapPattern matches "mc"/"mcap"/"market cap" followed by a number
// with an optional k/m/b suffix, e.g. "MC: $45K" or "mcap 1.2m".
var mcapPattern = regexp.MustCompile(`(?i)\b(?:mc|mcap|market\s*cap)\b[:\s]*\$?\s*([0-9][0-9.,]*)\s*([kmb])?`)

// ExtractMcap pulls a market cap figure out of the raw alert payload.
func ExtractMcap(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	m := mcapPattern.FindSubmatch(raw)
	if m == nil {
		return 0, false
	}

	num := strings.ReplaceAll(string(m[1]), ",", "")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v <= 0 {
		return 0, false
	}

	switch strings.ToLower(string(m[2])) {
	case "k":
		v *= 1e3
	case "m":
		v *= 1e6
	case "b":
		v *= 1e9
	}
	return v, true
}
