package migrations

import "embed"

// PostgresFS holds the relational schema (tokens, callers, alerts,
// strategies, runs, summaries), applied in filename order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ohlcv_candles schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
