package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/ingest"
	"caller-alert-lab/internal/marketdata"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/storage"
	chstore "caller-alert-lab/internal/storage/clickhouse"
	"caller-alert-lab/internal/storage/memory"
	"caller-alert-lab/internal/storage/migrations"
	pgstore "caller-alert-lab/internal/storage/postgres"
)

func main() {
	mode := flag.String("mode", "telegram", "Ingestion mode: telegram or ohlcv")

	// telegram mode
	file := flag.String("file", "", "Telegram Desktop export JSON file")
	caller := flag.String("caller", "", "Caller handle the export belongs to")
	chain := flag.String("chain", string(domain.ChainSolana), "Chain tag (solana or evm:<id>)")
	chatID := flag.Int64("chat-id", 0, "Override the export's chat id")

	// ohlcv mode
	from := flag.Int64("from", 0, "Alert window start (unix seconds)")
	to := flag.Int64("to", 0, "Alert window end (unix seconds)")
	preMinutes := flag.Int64("pre-minutes", 0, "Minutes of candles before each alert")
	postMinutes := flag.Int64("post-minutes", 240, "Minutes of candles after each alert")
	interval := flag.Int64("interval", 60, "Candle interval in seconds")
	workers := flag.Int("workers", 4, "Parallel backfill workers")
	apiURL := flag.String("api-url", "", "Market data API base URL")
	apiRPS := flag.Float64("api-rps", 2, "Shared API request budget (requests/sec)")

	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (env POSTGRES_* as fallback)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (env CLICKHOUSE_* as fallback)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the backing stores")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch *mode {
	case "telegram":
		err = runTelegram(ctx, logger, *file, *caller, domain.Chain(*chain), *chatID, *postgresDSN, *useMemory)
	case "ohlcv":
		err = runOHLCV(ctx, logger, ohlcvConfig{
			from: *from, to: *to,
			preMinutes: *preMinutes, postMinutes: *postMinutes,
			interval: *interval, workers: *workers,
			apiURL: *apiURL, apiRPS: *apiRPS,
			postgresDSN: *postgresDSN, clickhouseDSN: *clickhouseDSN,
			useMemory: *useMemory,
		})
	default:
		err = fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, *mode)
	}
	if err != nil {
		logger.Printf("Error: %v", err)
		os.Exit(exitCode(err))
	}
}

func runTelegram(ctx context.Context, logger *log.Logger, file, caller string, chain domain.Chain, chatID int64, postgresDSN string, useMemory bool) error {
	if file == "" {
		return fmt.Errorf("%w: --file is required for telegram mode", domain.ErrValidation)
	}

	var tokens storage.TokenStore = memory.NewTokenStore()
	var callers storage.CallerStore = memory.NewCallerStore()
	var alerts storage.AlertStore = memory.NewAlertStore()

	if !useMemory {
		pool, err := openPostgres(ctx, postgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		tokens = pgstore.NewTokenStore(pool)
		callers = pgstore.NewCallerStore(pool)
		alerts = pgstore.NewAlertStore(pool)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	report, err := ingest.NewIngestor(tokens, callers, alerts, logger).
		IngestTelegram(ctx, f, ingest.TelegramOptions{
			CallerName: caller,
			Chain:      chain,
			ChatID:     chatID,
		})
	if err != nil {
		return err
	}
	logger.Printf("Done: %d inserted, %d duplicates", report.Inserted, report.Duplicates)
	return nil
}

type ohlcvConfig struct {
	from, to                int64
	preMinutes, postMinutes int64
	interval                int64
	workers                 int
	apiURL                  string
	apiRPS                  float64
	postgresDSN             string
	clickhouseDSN           string
	useMemory               bool
}

func runOHLCV(ctx context.Context, logger *log.Logger, cfg ohlcvConfig) error {
	if cfg.apiURL == "" {
		return fmt.Errorf("%w: --api-url is required for ohlcv mode", domain.ErrValidation)
	}
	if cfg.to <= cfg.from {
		return fmt.Errorf("%w: --from/--to window is empty", domain.ErrValidation)
	}

	var alerts storage.AlertStore = memory.NewAlertStore()
	var candleStore storage.CandleStore = memory.NewCandleStore()

	if !cfg.useMemory {
		pool, err := openPostgres(ctx, cfg.postgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		alerts = pgstore.NewAlertStore(pool)

		conn, err := openClickhouse(ctx, cfg.clickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		candleStore = chstore.NewCandleStore(conn)
	}

	api := marketdata.NewClient(cfg.apiURL,
		marketdata.WithKeyRing(marketdata.NewKeyRing(apiKeysFromEnv())),
		marketdata.WithBudget(marketdata.NewBudget(cfg.apiRPS, cfg.workers)),
	)
	provider := candles.NewProvider(candleStore, api, candles.WithLogger(logger))

	report, err := ingest.NewBackfiller(alerts, provider, logger).Run(ctx, ingest.BackfillOptions{
		From:            cfg.from,
		To:              cfg.to,
		PreMinutes:      cfg.preMinutes,
		PostMinutes:     cfg.postMinutes,
		IntervalSeconds: cfg.interval,
		Workers:         cfg.workers,
	})
	if err != nil {
		return err
	}
	logger.Printf("Done: %d complete, %d gapped, %d failed", report.Complete, report.Gapped, report.Failed)
	return nil
}

func openPostgres(ctx context.Context, dsn string) (*pgstore.Pool, error) {
	if dsn == "" {
		dsn = postgresDSNFromEnv()
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: --postgres-dsn or POSTGRES_* env is required (or --use-memory)", domain.ErrValidation)
	}
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pool, nil
}

func openClickhouse(ctx context.Context, dsn string) (*chstore.Conn, error) {
	if dsn == "" {
		dsn = clickhouseDSNFromEnv()
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: --clickhouse-dsn or CLICKHOUSE_* env is required (or --use-memory)", domain.ErrValidation)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("Metrics server error: %v", err)
	}
}

func postgresDSNFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "postgres")
	db := envOr("POSTGRES_DATABASE", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, os.Getenv("POSTGRES_PASSWORD"), host, port, db)
}

func clickhouseDSNFromEnv() string {
	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		return ""
	}
	port := envOr("CLICKHOUSE_PORT", "9000")
	user := envOr("CLICKHOUSE_USER", "default")
	db := envOr("CLICKHOUSE_DATABASE", "default")
	return fmt.Sprintf("clickhouse://%s:%s@%s:%s/%s",
		user, os.Getenv("CLICKHOUSE_PASSWORD"), host, port, db)
}

func apiKeysFromEnv() []string {
	if keys := os.Getenv("API_KEYS"); keys != "" {
		var out []string
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		return out
	}
	if key := os.Getenv("API_KEY"); key != "" {
		return []string{key}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return 2
	case errors.Is(err, storage.ErrNotFound):
		return 3
	case errors.Is(err, marketdata.ErrFetchFailed), errors.Is(err, marketdata.ErrRateLimited):
		return 4
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 5
	}
	return 1
}
