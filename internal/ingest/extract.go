// Package ingest turns Telegram Desktop chat exports into alert rows
// and backfills the candle windows they need. Ingestion is idempotent:
// re-running the same export changes nothing.
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"caller-alert-lab/internal/domain"
)

var (
	// Base58 alphabet, 32-44 chars, the Solana pubkey shape.
	solanaMintRe = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)
	evmMintRe    = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

	priceRe = regexp.MustCompile(`(?i)(?:price|entry|@)\s*[:=]?\s*\$?([0-9]+(?:[.,][0-9]+)?(?:e-?[0-9]+)?)`)
)

// ExtractMints returns the candidate token addresses in a message, in
// order of appearance, deduplicated, with the original case intact.
// Candidates that fail mint validation for the chain are dropped.
func ExtractMints(text string, chain domain.Chain) []string {
	re := solanaMintRe
	if !chain.IsSolana() {
		re = evmMintRe
	}

	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		if seen[m] {
			continue
		}
		if err := domain.ValidateMint(m, chain); err != nil {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ExtractPrice pulls an alert price from the message text. Returns
// false when no price-like figure is present; the caller stores null
// rather than guessing.
func ExtractPrice(text string) (float64, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
