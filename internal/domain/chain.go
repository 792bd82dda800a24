package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Chain identifies the network a token lives on.
// Values are "solana" or "evm:<numeric id>" (e.g. "evm:1", "evm:8453").
type Chain string

// ChainSolana is the only non-EVM chain currently supported.
const ChainSolana Chain = "solana"

// EVMChain builds a Chain tag for an EVM network id.
func EVMChain(id int64) Chain {
	return Chain("evm:" + strconv.FormatInt(id, 10))
}

// Validate checks that the chain tag is well-formed.
func (c Chain) Validate() error {
	if c == ChainSolana {
		return nil
	}
	rest, ok := strings.CutPrefix(string(c), "evm:")
	if !ok {
		return fmt.Errorf("%w: chain %q: must be %q or \"evm:<id>\"", ErrValidation, c, ChainSolana)
	}
	if _, err := strconv.ParseInt(rest, 10, 64); err != nil {
		return fmt.Errorf("%w: chain %q: non-numeric evm id", ErrValidation, c)
	}
	return nil
}

// IsSolana reports whether the chain is Solana.
func (c Chain) IsSolana() bool {
	return c == ChainSolana
}
