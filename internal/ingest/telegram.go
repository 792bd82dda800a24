package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/idhash"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/storage"
)

// TelegramOptions configures one export ingestion.
type TelegramOptions struct {
	CallerName string
	Chain      domain.Chain
	// ChatID overrides the export's own chat id when the export was
	// re-exported under a different id.
	ChatID int64
}

// Report counts what one ingestion did.
type Report struct {
	Parsed     int
	Inserted   int
	Duplicates int
	Skipped    int
}

// Ingestor writes alerts from chat exports.
type Ingestor struct {
	tokens  storage.TokenStore
	callers storage.CallerStore
	alerts  storage.AlertStore
	logger  *log.Logger
}

// NewIngestor wires an ingestor to its stores.
func NewIngestor(tokens storage.TokenStore, callers storage.CallerStore, alerts storage.AlertStore, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}
	return &Ingestor{tokens: tokens, callers: callers, alerts: alerts, logger: logger}
}

// telegramExport mirrors the Telegram Desktop JSON export layout.
type telegramExport struct {
	Name     string            `json:"name"`
	ID       int64             `json:"id"`
	Messages []json.RawMessage `json:"messages"`
}

type telegramMessage struct {
	ID       int64           `json:"id"`
	Type     string          `json:"type"`
	DateUnix string          `json:"date_unixtime"`
	Text     json.RawMessage `json:"text"`
}

// IngestTelegram parses a Telegram Desktop export and inserts one
// alert per message that names a valid mint. Identity is
// (chat_id, message_id); re-ingesting the same export only produces
// duplicates, never new rows.
func (in *Ingestor) IngestTelegram(ctx context.Context, r io.Reader, opts TelegramOptions) (*Report, error) {
	if opts.CallerName == "" {
		return nil, fmt.Errorf("%w: ingest: caller name required", domain.ErrValidation)
	}
	if err := opts.Chain.Validate(); err != nil {
		return nil, err
	}

	var export telegramExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("ingest: parse export: %w", err)
	}
	chatID := export.ID
	if opts.ChatID != 0 {
		chatID = opts.ChatID
	}
	if chatID == 0 {
		return nil, fmt.Errorf("%w: ingest: export carries no chat id and none was given", domain.ErrValidation)
	}

	if _, err := in.callers.Ensure(ctx, &domain.Caller{Source: "telegram", Handle: opts.CallerName}); err != nil {
		return nil, fmt.Errorf("ingest: ensure caller: %w", err)
	}

	report := &Report{}
	for _, raw := range export.Messages {
		var msg telegramMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			report.Skipped++
			continue
		}
		if msg.Type != "" && msg.Type != "message" {
			report.Skipped++
			continue
		}
		report.Parsed++

		text := flattenText(msg.Text)
		mints := ExtractMints(text, opts.Chain)
		if len(mints) == 0 {
			report.Skipped++
			continue
		}

		ts, err := strconv.ParseInt(msg.DateUnix, 10, 64)
		if err != nil || ts <= 0 {
			report.Skipped++
			observability.RecordAlertRejected("bad_timestamp")
			continue
		}

		mint := mints[0]
		if _, err := in.tokens.Ensure(ctx, &domain.Token{Chain: opts.Chain, Address: mint}); err != nil {
			return nil, fmt.Errorf("ingest: ensure token %s: %w", mint, err)
		}

		alert := &domain.Alert{
			AlertID:      idhash.AlertID(chatID, msg.ID),
			TokenAddress: mint,
			Chain:        opts.Chain,
			CallerID:     opts.CallerName,
			AlertTs:      ts,
			ChatID:       chatID,
			MessageID:    msg.ID,
			RawPayload:   raw,
		}
		if price, ok := ExtractPrice(text); ok {
			alert.AlertPrice = &price
		}
		if mcap, ok := candles.ExtractMcap(raw); ok {
			alert.AlertMcap = &mcap
		}
		if err := alert.Validate(); err != nil {
			report.Skipped++
			observability.RecordAlertRejected("invalid")
			in.logger.Printf("skipping message %d: %v", msg.ID, err)
			continue
		}

		inserted, err := in.alerts.InsertIdempotent(ctx, alert)
		if err != nil {
			return nil, fmt.Errorf("ingest: insert alert %s: %w", alert.AlertID, err)
		}
		observability.RecordAlertIngested(inserted)
		if inserted {
			report.Inserted++
		} else {
			report.Duplicates++
		}
	}

	in.logger.Printf("export %q: %d parsed, %d inserted, %d duplicates, %d skipped",
		export.Name, report.Parsed, report.Inserted, report.Duplicates, report.Skipped)
	return report, nil
}

// flattenText joins the export's text field, which is either a plain
// string or an array mixing strings and typed entities.
func flattenText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var out []byte
	for _, p := range parts {
		var ps string
		if err := json.Unmarshal(p, &ps); err == nil {
			out = append(out, ps...)
			continue
		}
		var entity struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &entity); err == nil {
			out = append(out, entity.Text...)
		}
	}
	return string(out)
}
