package domain

import "encoding/json"

// Token is a canonical token row. Address keeps the exact case of the
// first sighting; lookups may normalise a key but never the stored
// string.
type Token struct {
	TokenID  int64           `json:"token_id"`
	Chain    Chain           `json:"chain"`
	Address  string          `json:"address"`
	Symbol   string          `json:"symbol,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Caller is a signal source, unique on (Source, Handle).
type Caller struct {
	CallerID int64  `json:"caller_id"`
	Source   string `json:"source"`
	Handle   string `json:"handle"`
}

// TokenMeta is market metadata fetched from the external API.
type TokenMeta struct {
	TokenAddress string   `json:"token_address"`
	Chain        Chain    `json:"chain"`
	Symbol       string   `json:"symbol,omitempty"`
	Supply       *float64 `json:"supply,omitempty"`
	MarketCap    *float64 `json:"market_cap,omitempty"`
	PriceUSD     *float64 `json:"price_usd,omitempty"`
}
