package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"caller-alert-lab/internal/artifact"
	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/experiment"
	"caller-alert-lab/internal/marketdata"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/storage"
	chstore "caller-alert-lab/internal/storage/clickhouse"
	"caller-alert-lab/internal/storage/migrations"
	pgstore "caller-alert-lab/internal/storage/postgres"
)

func main() {
	mode := flag.String("mode", "", "Command: run, replay, list, show, or leaderboard")

	// run / replay
	definitionPath := flag.String("definition", "", "Experiment definition JSON file (run mode)")
	manifestID := flag.String("manifest", "", "Manifest artifact id (replay mode)")

	// list / show / leaderboard
	runID := flag.String("run-id", "", "Run id (show mode)")
	status := flag.String("status", "", "Status filter (list mode)")
	limit := flag.Int("limit", 20, "Row limit (list and leaderboard modes)")
	offset := flag.Int("offset", 0, "Row offset (list mode)")
	criteria := flag.String("criteria", "return", "Ranking criteria: return, win_rate, profit_factor, sharpe, max_drawdown")
	ascending := flag.Bool("ascending", false, "Rank ascending instead of descending")
	minTrades := flag.Int("min-trades", 0, "Leaderboard minimum trade count")
	minWinRate := flag.Float64("min-win-rate", 0, "Leaderboard minimum win rate")

	dataDir := flag.String("data-dir", "", "Artifact store root (env DATA_DIR as fallback)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (env POSTGRES_* as fallback)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (env CLICKHOUSE_* as fallback)")
	apiURL := flag.String("api-url", "", "Market data API base URL (empty disables API fill)")
	apiRPS := flag.Float64("api-rps", 2, "Shared API request budget (requests/sec)")
	timeout := flag.Duration("timeout", 0, "Experiment wall clock limit (0 for none)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[experiment] ", log.LstdFlags)
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	err := run(ctx, logger, options{
		mode:           *mode,
		definitionPath: *definitionPath,
		manifestID:     *manifestID,
		runID:          *runID,
		status:         *status,
		limit:          *limit,
		offset:         *offset,
		criteria:       *criteria,
		ascending:      *ascending,
		minTrades:      *minTrades,
		minWinRate:     *minWinRate,
		dataDir:        *dataDir,
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		apiURL:         *apiURL,
		apiRPS:         *apiRPS,
	})
	if err != nil {
		logger.Printf("Error: %v", err)
		os.Exit(exitCode(err))
	}
}

type options struct {
	mode           string
	definitionPath string
	manifestID     string
	runID          string
	status         string
	limit          int
	offset         int
	criteria       string
	ascending      bool
	minTrades      int
	minWinRate     float64
	dataDir        string
	postgresDSN    string
	clickhouseDSN  string
	apiURL         string
	apiRPS         float64
}

func run(ctx context.Context, logger *log.Logger, opts options) error {
	handler, cleanup, err := buildHandler(ctx, logger, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	switch opts.mode {
	case "run":
		return runDefinition(ctx, handler, opts.definitionPath)
	case "replay":
		return runReplay(ctx, handler, opts.manifestID)
	case "list":
		return runList(ctx, handler, opts)
	case "show":
		return runShow(ctx, handler, opts.runID)
	case "leaderboard":
		return runLeaderboard(ctx, handler, opts)
	}
	return fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, opts.mode)
}

// buildHandler wires the experiment handler against the backing stores.
func buildHandler(ctx context.Context, logger *log.Logger, opts options) (*experiment.Handler, func(), error) {
	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = os.Getenv("DATA_DIR")
	}
	if dataDir == "" {
		return nil, nil, fmt.Errorf("%w: --data-dir or DATA_DIR is required", domain.ErrValidation)
	}
	artifacts, err := artifact.NewStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact store: %w", err)
	}

	pool, err := openPostgres(ctx, opts.postgresDSN)
	if err != nil {
		return nil, nil, err
	}

	conn, err := openClickhouse(ctx, opts.clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		conn.Close()
		pool.Close()
	}

	var api marketdata.Port = unavailableAPI{}
	var mcap *candles.McapResolver
	if opts.apiURL != "" {
		client := marketdata.NewClient(opts.apiURL,
			marketdata.WithKeyRing(marketdata.NewKeyRing(apiKeysFromEnv())),
			marketdata.WithBudget(marketdata.NewBudget(opts.apiRPS, 4)),
		)
		api = client
		mcap = candles.NewMcapResolver(client)
	}

	handler, err := experiment.NewHandler(experiment.Ports{
		Artifacts: artifacts,
		Candles:   candles.NewProvider(chstore.NewCandleStore(conn), api, candles.WithLogger(logger)),
		Alerts:    pgstore.NewAlertStore(pool),
		Runs:      pgstore.NewRunStore(pool),
		Summaries: pgstore.NewSummaryStore(pool),
		Mcap:      mcap,
		Logger:    logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return handler, cleanup, nil
}

func runDefinition(ctx context.Context, handler *experiment.Handler, path string) error {
	if path == "" {
		return fmt.Errorf("%w: --definition is required for run mode", domain.ErrValidation)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read definition: %w", err)
	}
	var def experiment.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("%w: decode definition: %v", domain.ErrValidation, err)
	}

	exp, err := handler.Execute(ctx, &def)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"run_id":      exp.Run.RunID,
		"manifest_id": exp.ManifestID,
		"summary":     exp.Summary,
	})
}

func runReplay(ctx context.Context, handler *experiment.Handler, manifestID string) error {
	if manifestID == "" {
		return fmt.Errorf("%w: --manifest is required for replay mode", domain.ErrValidation)
	}
	_, report, err := handler.Replay(ctx, manifestID)
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Match {
		return fmt.Errorf("replay of %s diverged", manifestID)
	}
	return nil
}

func runList(ctx context.Context, handler *experiment.Handler, opts options) error {
	runs, err := handler.List(ctx, domain.RunStatus(opts.status), opts.limit, opts.offset)
	if err != nil {
		return err
	}
	return printJSON(runs)
}

func runShow(ctx context.Context, handler *experiment.Handler, runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: --run-id is required for show mode", domain.ErrValidation)
	}
	detail, err := handler.Show(ctx, runID)
	if err != nil {
		return err
	}
	return printJSON(detail)
}

func runLeaderboard(ctx context.Context, handler *experiment.Handler, opts options) error {
	rows, err := handler.Leaderboard(ctx, storage.LeaderboardQuery{
		Criteria:   opts.criteria,
		Descending: !opts.ascending,
		Limit:      opts.limit,
		MinTrades:  opts.minTrades,
		MinWinRate: opts.minWinRate,
	})
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// unavailableAPI serves offline experiments: every candle window must
// already be in the time-series store.
type unavailableAPI struct{}

func (unavailableAPI) FetchCandles(context.Context, string, domain.Chain, int64, int64, int64) (domain.CandleSlice, error) {
	return nil, fmt.Errorf("%w: no api url configured", marketdata.ErrFetchFailed)
}

func (unavailableAPI) FetchTokenMeta(context.Context, string, domain.Chain) (*domain.TokenMeta, error) {
	return nil, fmt.Errorf("%w: no api url configured", marketdata.ErrFetchFailed)
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

func openPostgres(ctx context.Context, dsn string) (*pgstore.Pool, error) {
	if dsn == "" {
		dsn = postgresDSNFromEnv()
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: --postgres-dsn or POSTGRES_* env is required", domain.ErrValidation)
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
		return nil, fmt.Errorf("%w: --clickhouse-dsn or CLICKHOUSE_* env is required", domain.ErrValidation)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
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
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		return 3
	case errors.Is(err, marketdata.ErrFetchFailed), errors.Is(err, marketdata.ErrRateLimited):
		return 4
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 5
	}
	return 1
}
