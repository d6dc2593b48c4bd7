package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trashpanda-labs/papertrade/internal/config"
	"github.com/trashpanda-labs/papertrade/internal/consensus"
	"github.com/trashpanda-labs/papertrade/internal/engine"
	"github.com/trashpanda-labs/papertrade/internal/execution"
	"github.com/trashpanda-labs/papertrade/internal/logger"
	"github.com/trashpanda-labs/papertrade/internal/marketdata"
	"github.com/trashpanda-labs/papertrade/internal/marketdata/bybit"
	"github.com/trashpanda-labs/papertrade/internal/monitoring"
	"github.com/trashpanda-labs/papertrade/internal/notifications"
	"github.com/trashpanda-labs/papertrade/internal/reporting"
	"github.com/trashpanda-labs/papertrade/internal/risk"
	"github.com/trashpanda-labs/papertrade/internal/safety"
	"github.com/trashpanda-labs/papertrade/internal/storage"
	"github.com/trashpanda-labs/papertrade/internal/strategy"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file (e.g., btc_paper.json)")
		envFile     = flag.String("env", ".env", "Environment file path")
		statusEvery = flag.Duration("status-every", 15*time.Minute, "Console status table interval (0 disables)")
		testnetFlag = flag.Bool("testnet", false, "Use exchange testnet - overrides config")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🚀 Paper Trading Engine Starting...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *testnetFlag {
		cfg.Exchange.Testnet = true
	}

	appLog, err := logger.NewLogger("papertrade")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Close()

	if err := run(cfg, appLog, *statusEvery); err != nil && err != context.Canceled {
		appLog.Error("Engine exited: %v", err)
		log.Fatalf("Engine exited: %v", err)
	}
	fmt.Println("✅ Engine stopped successfully")
}

func run(cfg *config.Config, appLog *logger.Logger, statusEvery time.Duration) error {
	// Market data: REST behind rate limit + retry, klines over websocket.
	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
	})
	limiter := safety.NewRateLimiter("bybit-rest", cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
	retrier := safety.NewRetrier(cfg.RetryPolicy())
	provider := marketdata.NewResilientProvider(client, limiter, retrier)

	streamCfg := bybit.DefaultStreamConfig()
	streamCfg.Testnet = cfg.Exchange.Testnet
	streamCfg.Backoff = cfg.RetryPolicy()
	stream := bybit.NewKlineStream(streamCfg, appLog)
	if err := stream.Connect(); err != nil {
		return err
	}
	defer stream.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	guard := risk.NewGuard(cfg.Risk, cfg.InitialEquity, now)
	breaker := safety.NewCircuitBreaker(cfg.BreakerConfig(), cfg.InitialEquity, now)
	simulator := execution.NewSimulator(cfg.ExecutionConfig(), provider)

	strategies := []strategy.Strategy{
		strategy.NewRSIStrategy("1h", 14, 30, 70),
		strategy.NewSMACrossStrategy("1h", 20, 50),
		strategy.NewMACDStrategy("1h", 12, 26, 9),
		strategy.NewBollingerStrategy("1h", 20, 2.0),
		strategy.NewEMATrendStrategy("4h", 50),
	}

	eng, err := engine.NewEngine(cfg.EngineConfig(), engine.Deps{
		Provider:   provider,
		Stream:     stream,
		Store:      store,
		Strategies: strategies,
		Resolver:   consensus.NewResolver(cfg.MinRequiredVotes),
		Guard:      guard,
		Breaker:    breaker,
		Simulator:  simulator,
		ExitConfig: cfg.ExitsConfig(),
		Log:        appLog,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Restore(ctx); err != nil {
		return err
	}

	// Downstream event consumers.
	if cfg.Monitoring.Enabled {
		health := monitoring.NewHealthChecker()
		health.SetStreamUp(true)
		go monitoring.ObserveEvents(eng.Events().Subscribe(128))
		go serveMonitoring(cfg.Monitoring.ListenAddr, health, appLog)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					status := eng.GetPortfolioStatus()
					health.Refresh(status.Risk.Equity, len(status.Open), status.Breaker.Tripped)
					monitoring.UpdateEquity(status.Risk.Equity)
				}
			}
		}()
	}
	if cfg.Notifications != nil && cfg.Notifications.Enabled {
		notifier := notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat)
		dispatcher := notifications.NewDispatcher(appLog, notifier)
		go dispatcher.Run(eng.Events().Subscribe(128))
	}

	console := reporting.NewConsoleRenderer()
	console.PrintStartup(cfg.Symbols, cfg.EngineConfig().EvalInterval, cfg.Interval, cfg.InitialEquity)
	if statusEvery > 0 {
		go func() {
			ticker := time.NewTicker(statusEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					console.PrintStatus(eng.GetPortfolioStatus())
				}
			}
		}()
	}

	// Shut down on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 Shutdown signal received...")
		cancel()
	}()

	return eng.Run(ctx)
}

func serveMonitoring(addr string, health *monitoring.HealthChecker, appLog *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)

	appLog.Info("Monitoring endpoints on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		appLog.Error("Monitoring server stopped: %v", err)
	}
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
