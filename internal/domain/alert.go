package domain

import (
	"encoding/json"
	"fmt"
)

// Alert is one timestamped caller signal naming a token.
// Identity is (ChatID, MessageID) drawn from the raw payload; ingesting
// the same export twice must not create a second row.
type Alert struct {
	AlertID      string          `json:"alert_id"`
	TokenAddress string          `json:"token_address"`
	Chain        Chain           `json:"chain"`
	CallerID     string          `json:"caller_id"`
	AlertTs      int64           `json:"alert_ts"`
	AlertPrice   *float64        `json:"alert_price,omitempty"`
	AlertMcap    *float64        `json:"alert_mcap,omitempty"`
	ChatID       int64           `json:"chat_id"`
	MessageID    int64           `json:"message_id"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
}

// Validate checks the alert's structural invariants.
func (a *Alert) Validate() error {
	if a.AlertID == "" {
		return fmt.Errorf("%w: alert.alert_id: empty", ErrValidation)
	}
	if err := a.Chain.Validate(); err != nil {
		return err
	}
	if err := ValidateMint(a.TokenAddress, a.Chain); err != nil {
		return err
	}
	if a.AlertTs <= 0 {
		return fmt.Errorf("%w: alert.alert_ts: must be positive", ErrValidation)
	}
	if a.ChatID == 0 || a.MessageID == 0 {
		return fmt.Errorf("%w: alert: chat_id and message_id are required", ErrValidation)
	}
	return nil
}
