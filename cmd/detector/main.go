// Package main runs the sandwich detector against one swap router:
// - live: WebSocket log subscription with block-lag buffering
// - backfill: eth_getLogs over a block range, resumable from checkpoints
// - replay: re-detection over stored swap observations
// - verify: replay without side effects, compared against stored findings
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"sandwich-watch/internal/alert"
	"sandwich-watch/internal/detection"
	"sandwich-watch/internal/evm"
	"sandwich-watch/internal/ingestion"
	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/observer"
	"sandwich-watch/internal/storage"
	chstore "sandwich-watch/internal/storage/clickhouse"
	"sandwich-watch/internal/storage/memory"
	"sandwich-watch/internal/storage/migrations"
	pgstore "sandwich-watch/internal/storage/postgres"
	"sandwich-watch/internal/verification"
)

type config struct {
	mode            string
	router          common.Address
	rpcEndpoint     string
	wsEndpoint      string
	postgresDSN     string
	clickhouseDSN   string
	useMemory       bool
	migrate         bool
	historyCapacity int
	sweepInterval   int
	blockLagWindow  uint64
	fromBlock       uint64
	toBlock         uint64
	maxBlockRange   uint64
	kafkaBrokers    []string
	kafkaTopic      string
}

// stores holds the storage backends used by every mode.
type stores struct {
	findings     storage.FindingStore
	observations storage.ObservationStore
	checkpoints  storage.CheckpointStore
	analytics    *chstore.FindingStore // nil without --clickhouse-dsn
}

func main() {
	// Load .env file if exists; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	mode := flag.String("mode", envOr("DETECTOR_MODE", "live"), "Detector mode: live, backfill, replay, or verify")
	router := flag.String("router", os.Getenv("ROUTER_ADDRESS"), "Monitored swap router address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum JSON-RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("ETH_WS_ENDPOINT"), "Ethereum JSON-RPC WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics copy of findings)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", true, "Apply embedded SQL migrations on startup")
	historyCapacity := flag.Int("history-capacity", envInt("HISTORY_CAPACITY", detection.DefaultConfig().HistoryCapacity), "Call history ring size")
	sweepInterval := flag.Int("sweep-interval", envInt("SWEEP_INTERVAL", detection.DefaultConfig().SweepInterval), "Ring cycles between eviction sweeps")
	blockLag := flag.Uint64("block-lag", 3, "Blocks to wait before handing a block to the detector (live mode)")
	fromBlock := flag.Uint64("from-block", 0, "First block (backfill, replay, verify)")
	toBlock := flag.Uint64("to-block", 0, "Last block (backfill, replay, verify); 0 means chain head")
	maxBlockRange := flag.Uint64("max-block-range", ingestion.DefaultMaxBlockRange, "Max blocks per eth_getLogs request")
	kafkaBrokers := flag.String("kafka-brokers", os.Getenv("KAFKA_BROKERS"), "Comma-separated Kafka brokers for finding fan-out (empty to disable)")
	kafkaTopic := flag.String("kafka-topic", envOr("KAFKA_TOPIC", "sandwich-findings"), "Kafka topic for findings")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[detector] ", log.LstdFlags|log.Lshortfile)

	if !common.IsHexAddress(*router) {
		logger.Fatalf("--router must be a hex address, got %q", *router)
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	cfg := config{
		mode:            *mode,
		router:          common.HexToAddress(*router),
		rpcEndpoint:     *rpcEndpoint,
		wsEndpoint:      *wsEndpoint,
		postgresDSN:     *postgresDSN,
		clickhouseDSN:   *clickhouseDSN,
		useMemory:       *useMemory,
		migrate:         *migrate,
		historyCapacity: *historyCapacity,
		sweepInterval:   *sweepInterval,
		blockLagWindow:  *blockLag,
		fromBlock:       *fromBlock,
		toBlock:         *toBlock,
		maxBlockRange:   *maxBlockRange,
		kafkaBrokers:    splitList(*kafkaBrokers),
		kafkaTopic:      *kafkaTopic,
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, cfg)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, cfg config) error {
	st, cleanup, err := createStores(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	sink, closeSink := buildSink(logger, cfg, st)
	defer closeSink()

	engine := detection.NewEngine(detection.EngineOptions{
		Config: detection.Config{
			HistoryCapacity: cfg.historyCapacity,
			SweepInterval:   cfg.sweepInterval,
		},
		Sink:   sink,
		Logger: logger,
	})

	logger.Printf("Monitoring router %s (mode=%s, history=%d, sweep=%d)",
		cfg.router.Hex(), cfg.mode, cfg.historyCapacity, cfg.sweepInterval)

	switch cfg.mode {
	case "live":
		return runLive(ctx, logger, cfg, st, engine)
	case "backfill":
		return runBackfill(ctx, logger, cfg, st, engine)
	case "replay":
		return runReplay(ctx, logger, cfg, st, engine)
	case "verify":
		return runVerify(ctx, logger, cfg, st)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.mode)
	}
}

// newManager wires the observer, observation store and engine.
func newManager(logger *log.Logger, cfg config, rpc *evm.HTTPClient, st *stores, engine *detection.Engine) (*ingestion.Manager, *observer.Observer, error) {
	obs, err := observer.New(observer.Options{
		Router:   cfg.router,
		Resolver: rpc,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create observer: %w", err)
	}

	manager := ingestion.NewManager(ingestion.ManagerOptions{
		Observer:         obs,
		ObservationStore: st.observations,
		Engine:           engine,
		Logger:           logger,
	})
	return manager, obs, nil
}

// runLive runs continuous ingestion from a log subscription.
func runLive(ctx context.Context, logger *log.Logger, cfg config, st *stores, engine *detection.Engine) error {
	if cfg.rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required for live mode")
	}
	if cfg.wsEndpoint == "" {
		return fmt.Errorf("--ws-endpoint is required for live mode")
	}

	rpc := evm.NewHTTPClient(cfg.rpcEndpoint)
	ws, err := evm.NewWSClient(ctx, cfg.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	manager, obs, err := newManager(logger, cfg, rpc, st, engine)
	if err != nil {
		return err
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:          ingestion.NewWSLogSource(ws, cfg.router, obs.Topic()),
		Manager:         manager,
		CheckpointStore: st.checkpoints,
		Router:          cfg.router,
		BlockLagWindow:  cfg.blockLagWindow,
		Logger:          logger,
	})

	logger.Println("Starting live detection...")
	err = runner.Run(ctx)

	stats := runner.Stats()
	logger.Printf("Live detection stopped: %d logs, %d blocks, %d swaps, %d findings, %d errors",
		stats.LogsReceived, stats.BlocksProcessed, stats.Swaps, stats.Findings, stats.Errors)
	return err
}

// runBackfill ingests historical blocks. Without --from-block it resumes from
// the saved checkpoint.
func runBackfill(ctx context.Context, logger *log.Logger, cfg config, st *stores, engine *detection.Engine) error {
	if cfg.rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required for backfill mode")
	}

	rpc := evm.NewHTTPClient(cfg.rpcEndpoint)
	manager, obs, err := newManager(logger, cfg, rpc, st, engine)
	if err != nil {
		return err
	}

	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		Fetcher:         ingestion.NewRPCLogSource(rpc, cfg.router, obs.Topic(), cfg.maxBlockRange),
		Head:            rpc,
		Manager:         manager,
		CheckpointStore: st.checkpoints,
		Router:          cfg.router,
		Logger:          logger,
	})

	var result *ingestion.BackfillResult
	switch {
	case cfg.fromBlock > 0 && cfg.toBlock > 0:
		logger.Printf("Backfilling block range: %d to %d", cfg.fromBlock, cfg.toBlock)
		result, err = backfiller.BackfillRange(ctx, cfg.fromBlock, cfg.toBlock)
	case cfg.fromBlock > 0:
		head, herr := rpc.BlockNumber(ctx)
		if herr != nil {
			return fmt.Errorf("get head block: %w", herr)
		}
		logger.Printf("Backfilling block range: %d to head %d", cfg.fromBlock, head)
		result, err = backfiller.BackfillRange(ctx, cfg.fromBlock, head)
	default:
		logger.Println("No --from-block specified, resuming from checkpoint")
		result, err = backfiller.Resume(ctx, 0)
	}
	if err != nil {
		return err
	}

	logger.Printf("Backfill complete: blocks %d-%d, %d swaps, %d stored, %d findings in %v",
		result.FromBlock, result.ToBlock, result.Swaps, result.Stored, result.Findings, result.Duration)
	return nil
}

// resolveToBlock returns --to-block, or the chain head when it is unset.
func resolveToBlock(ctx context.Context, cfg config) (uint64, error) {
	if cfg.toBlock > 0 {
		return cfg.toBlock, nil
	}
	if cfg.rpcEndpoint == "" {
		return 0, fmt.Errorf("--to-block or --rpc-endpoint is required for %s mode", cfg.mode)
	}
	head, err := evm.NewHTTPClient(cfg.rpcEndpoint).BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get head block: %w", err)
	}
	return head, nil
}

// runReplay re-runs detection over stored observations with a fresh engine.
func runReplay(ctx context.Context, logger *log.Logger, cfg config, st *stores, engine *detection.Engine) error {
	to, err := resolveToBlock(ctx, cfg)
	if err != nil {
		return err
	}

	replayer := ingestion.NewReplayer(ingestion.ReplayerOptions{
		ObservationStore: st.observations,
		Engine:           engine,
		Router:           cfg.router,
		Logger:           logger,
	})

	result, err := replayer.Replay(ctx, cfg.fromBlock, to)
	if err != nil {
		return err
	}

	logger.Printf("Replay complete: %d observations, %d transactions, %d findings in %v",
		result.ObservationsProcessed, result.Transactions, len(result.Findings), result.Duration)
	return nil
}

// runVerify replays stored observations and checks the stored findings are
// reproduced exactly.
func runVerify(ctx context.Context, logger *log.Logger, cfg config, st *stores) error {
	to, err := resolveToBlock(ctx, cfg)
	if err != nil {
		return err
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		ObservationStore: st.observations,
		FindingStore:     st.findings,
		Router:           cfg.router,
		Config: detection.Config{
			HistoryCapacity: cfg.historyCapacity,
			SweepInterval:   cfg.sweepInterval,
		},
		Logger: logger,
	})

	report, err := verifier.Verify(ctx, cfg.fromBlock, to)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		if !r.Match {
			logger.Printf("Divergent finding %s: %+v", r.FindingID, r.Divergences)
		}
	}
	for _, id := range report.Missing {
		logger.Printf("Stored finding %s not reproduced", id)
	}
	for _, id := range report.Unexpected {
		logger.Printf("Replayed finding %s not stored", id)
	}

	if !report.Consistent() {
		return fmt.Errorf("verification failed: %d divergent, %d missing, %d unexpected",
			report.DivergentFindings, len(report.Missing), len(report.Unexpected))
	}
	logger.Printf("Verification passed: %d findings reproduced", report.MatchedFindings)
	return nil
}

// createStores opens the configured backends and applies migrations.
func createStores(ctx context.Context, logger *log.Logger, cfg config) (*stores, func(), error) {
	if cfg.useMemory {
		logger.Println("Using in-memory storage")
		return &stores{
			findings:     memory.NewFindingStore(),
			observations: memory.NewObservationStore(),
			checkpoints:  memory.NewCheckpointStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.migrate {
		res, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Printf("Postgres migrations: applied=%v skipped=%d", res.Applied, len(res.Skipped))
	}

	st := &stores{
		findings:     pgstore.NewFindingStore(pool),
		observations: pgstore.NewObservationStore(pool),
		checkpoints:  pgstore.NewCheckpointStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.clickhouseDSN != "" {
		var conn *chstore.Conn
		if cfg.migrate {
			var res *migrations.Result
			conn, res, err = migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
			if err == nil {
				logger.Printf("ClickHouse migrations: applied=%v skipped=%d", res.Applied, len(res.Skipped))
			}
		} else {
			conn, err = chstore.NewConn(ctx, cfg.clickhouseDSN)
		}
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		st.analytics = chstore.NewFindingStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return st, cleanup, nil
}

// buildSink assembles the finding fan-out: log, primary store, optional
// ClickHouse copy and optional Kafka topic. Replay re-detects findings that
// were already announced, so it writes to the stores only.
func buildSink(logger *log.Logger, cfg config, st *stores) (alert.Sink, func()) {
	sinks := alert.MultiSink{alert.NewStoreSink(st.findings)}
	if st.analytics != nil {
		sinks = append(sinks, alert.NewStoreSink(st.analytics))
	}
	if cfg.mode == "replay" {
		return sinks, func() {}
	}
	sinks = append(alert.MultiSink{alert.NewLogSink(logger)}, sinks...)

	closeFn := func() {}
	if len(cfg.kafkaBrokers) > 0 {
		kafka := alert.NewKafkaSink(alert.KafkaConfig{
			Brokers: cfg.kafkaBrokers,
			Topic:   cfg.kafkaTopic,
		})
		sinks = append(sinks, kafka)
		closeFn = func() {
			if err := kafka.Close(); err != nil {
				logger.Printf("Error closing kafka writer: %v", err)
			}
		}
		logger.Printf("Publishing findings to kafka topic %s", cfg.kafkaTopic)
	}
	return sinks, closeFn
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
