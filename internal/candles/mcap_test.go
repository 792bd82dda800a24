package candles

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/marketdata"
)

// metaPort serves a fixed TokenMeta.
type metaPort struct {
	meta *domain.TokenMeta
	err  error
}

func (p *metaPort) FetchCandles(context.Context, string, domain.Chain, int64, int64, int64) (domain.CandleSlice, error) {
	return nil, marketdata.ErrFetchFailed
}

func (p *metaPort) FetchTokenMeta(context.Context, string, domain.Chain) (*domain.TokenMeta, error) {
	return p.meta, p.err
}

func alertWithPrice(mint string, price float64) *domain.Alert {
	return &domain.Alert{
		AlertID: "a1", TokenAddress: mint, Chain: domain.ChainSolana,
		AlertTs: 1000, AlertPrice: &price, ChatID: 1, MessageID: 1,
	}
}

func TestMcapResolver_LaunchpadFastPath(t *testing.T) {
	// Suffix match means 10^9 supply, no API call.
	r := NewMcapResolver(&metaPort{err: marketdata.ErrFetchFailed})
	alert := alertWithPrice("AbCdEf1111111111111111111111111111111pump", 0.00005)

	mcap, source := r.Resolve(context.Background(), alert)
	require.NotNil(t, mcap)
	assert.InDelta(t, 50000, *mcap, 1e-9)
	assert.Equal(t, McapLaunchpadSupply, source)
}

func TestMcapResolver_APISupply(t *testing.T) {
	supply := 5e8
	r := NewMcapResolver(&metaPort{meta: &domain.TokenMeta{Supply: &supply}})
	alert := alertWithPrice("So11111111111111111111111111111111111111112", 0.002)

	mcap, source := r.Resolve(context.Background(), alert)
	require.NotNil(t, mcap)
	assert.InDelta(t, 1e6, *mcap, 1e-6)
	assert.Equal(t, McapAPI, source)
}

func TestMcapResolver_InferredFromCurrent(t *testing.T) {
	now, cap := 0.004, 2e6
	r := NewMcapResolver(&metaPort{meta: &domain.TokenMeta{PriceUSD: &now, MarketCap: &cap}})
	alert := alertWithPrice("So11111111111111111111111111111111111111112", 0.002)

	mcap, source := r.Resolve(context.Background(), alert)
	require.NotNil(t, mcap)
	assert.InDelta(t, 1e6, *mcap, 1e-6)
	assert.Equal(t, McapInferred, source)
}

func TestMcapResolver_RegexBeatsInference(t *testing.T) {
	// Metadata would allow ratio inference, but the message states a
	// figure outright; the stated figure wins.
	now, cap := 0.004, 2e6
	r := NewMcapResolver(&metaPort{meta: &domain.TokenMeta{PriceUSD: &now, MarketCap: &cap}})
	alert := alertWithPrice("So11111111111111111111111111111111111111112", 0.002)
	alert.RawPayload = json.RawMessage(`{"text":"entry mcap 45k, tight"}`)

	mcap, source := r.Resolve(context.Background(), alert)
	require.NotNil(t, mcap)
	assert.InDelta(t, 45000, *mcap, 1e-9)
	assert.Equal(t, McapRegex, source)
}

func TestMcapResolver_RegexFallback(t *testing.T) {
	r := NewMcapResolver(&metaPort{err: marketdata.ErrFetchFailed})
	alert := &domain.Alert{
		AlertID: "a1", TokenAddress: "So11111111111111111111111111111111111111112",
		Chain: domain.ChainSolana, AlertTs: 1000, ChatID: 1, MessageID: 1,
		RawPayload: json.RawMessage(`{"text":"new gem! MC: $45K lfg"}`),
	}

	mcap, source := r.Resolve(context.Background(), alert)
	require.NotNil(t, mcap)
	assert.InDelta(t, 45000, *mcap, 1e-9)
	assert.Equal(t, McapRegex, source)
}

func TestMcapResolver_NeverGuesses(t *testing.T) {
	r := NewMcapResolver(&metaPort{err: marketdata.ErrFetchFailed})
	alert := &domain.Alert{
		AlertID: "a1", TokenAddress: "So11111111111111111111111111111111111111112",
		Chain: domain.ChainSolana, AlertTs: 1000, ChatID: 1, MessageID: 1,
		RawPayload: json.RawMessage(`{"text":"no numbers here"}`),
	}

	mcap, source := r.Resolve(context.Background(), alert)
	assert.Nil(t, mcap)
	assert.Equal(t, McapNone, source)
}

func TestExtractMcap(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{`{"text":"mcap 1.2m"}`, 1.2e6, true},
		{`{"text":"Market Cap: $3,500,000"}`, 3.5e6, true},
		{`{"text":"mc $2b moonshot"}`, 2e9, true},
		{`{"text":"MC:80k"}`, 80000, true},
		{`{"text":"macro conditions"}`, 0, false},
		{``, 0, false},
	}
	for _, tc := range cases {
		got, ok := ExtractMcap(json.RawMessage(tc.in))
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-6, tc.in)
		}
	}
}
