package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"caller-alert-lab/internal/domain"
)

const (
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestExtractMints(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		chain domain.Chain
		want  []string
	}{
		{
			name:  "single solana mint",
			text:  "new call: " + wsolMint + " looks strong",
			chain: domain.ChainSolana,
			want:  []string{wsolMint},
		},
		{
			name:  "dedup preserves order",
			text:  wsolMint + " then " + usdcMint + " then " + wsolMint,
			chain: domain.ChainSolana,
			want:  []string{wsolMint, usdcMint},
		},
		{
			name:  "case preserved exactly",
			text:  "ape " + usdcMint,
			chain: domain.ChainSolana,
			want:  []string{usdcMint},
		},
		{
			name:  "evm address",
			text:  "buy 0x6B175474E89094C44Da98b954EedeAC495271d0F now",
			chain: domain.EVMChain(1),
			want:  []string{"0x6B175474E89094C44Da98b954EedeAC495271d0F"},
		},
		{
			name:  "no mint",
			text:  "gm everyone",
			chain: domain.ChainSolana,
			want:  nil,
		},
		{
			name:  "base58 shape but wrong chain",
			text:  wsolMint,
			chain: domain.EVMChain(1),
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMints(tt.text, tt.chain))
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{"entry with dollar", "entry: $0.0045", 0.0045, true},
		{"price keyword", "price 1.25", 1.25, true},
		{"at sign", "in @ 0.002", 0.002, true},
		{"scientific", "entry = 4.5e-6", 4.5e-6, true},
		{"no price", "send it", 0, false},
		{"zero rejected", "price 0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPrice(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}
