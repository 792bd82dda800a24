package domain

import (
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Mint address length bounds. Base58-encoded 32-byte keys are 32-44
// characters; EVM addresses (0x + 40 hex) also fall inside the range.
const (
	MintMinLen = 32
	MintMaxLen = 44
)

// PumpBonkSupply is the fixed total supply minted by the pump.fun and
// letsbonk.fun launchpads. Tokens whose mint ends in "pump" or "bonk"
// derive market cap as price * PumpBonkSupply without a metadata call.
const PumpBonkSupply = 1e9

// ValidateMint checks a mint address for the given chain.
// The address is never case-folded or truncated; callers must pass the
// exact string that will be persisted and sent to remote APIs.
func ValidateMint(mint string, chain Chain) error {
	if len(mint) < MintMinLen || len(mint) > MintMaxLen {
		return fmt.Errorf("%w: mint %q: length %d outside [%d, %d]", ErrValidation, mint, len(mint), MintMinLen, MintMaxLen)
	}
	if !chain.IsSolana() {
		// EVM: 0x-prefixed 40 hex chars. Case carries the EIP-55
		// checksum, so it is validated as-is, not lowered.
		if !strings.HasPrefix(mint, "0x") || len(mint) != 42 {
			return fmt.Errorf("%w: mint %q: not a 0x-prefixed 20-byte address", ErrValidation, mint)
		}
		for _, r := range mint[2:] {
			if !isHex(r) {
				return fmt.Errorf("%w: mint %q: non-hex character %q", ErrValidation, mint, r)
			}
		}
		return nil
	}
	raw, err := base58.Decode(mint)
	if err != nil {
		return fmt.Errorf("%w: mint %q: %v", ErrValidation, mint, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: mint %q: decodes to %d bytes, want 32", ErrValidation, mint, len(raw))
	}
	return nil
}

// MintOnCurve reports whether a Solana mint's public key lies on the
// ed25519 curve. Program-derived addresses are off-curve; the flag is
// recorded in diagnostics, it is not a validity criterion.
func MintOnCurve(mint string) bool {
	raw, err := base58.Decode(mint)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// HasLaunchpadSuffix reports whether the mint carries a pump.fun or
// letsbonk.fun vanity suffix, which implies the fixed PumpBonkSupply.
func HasLaunchpadSuffix(mint string) bool {
	return strings.HasSuffix(mint, "pump") || strings.HasSuffix(mint, "bonk")
}

func isHex(r rune) bool {
	switch {
	case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		return true
	}
	return false
}
