package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"algotrader/internal/algo"
	"algotrader/internal/alert"
	"algotrader/internal/broker"
	"algotrader/internal/config"
	"algotrader/internal/core"
	"algotrader/internal/mock"
	"algotrader/internal/models"
	"algotrader/internal/strategy"
	"algotrader/pkg/concurrency"
	"algotrader/pkg/logging"
	"algotrader/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

// optionSellerLots is the default lots table for the bundled option
// seller: one lot on every trading day, one on expiry day.
var optionSellerLots = []int64{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}

func main() {
	configPath := flag.String("config", "configs/algotrader.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("algotrader version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting algotrader",
		"version", version,
		"accounts", len(cfg.Accounts),
		"track_interval", cfg.Timing.TrackInterval().String(),
	)

	tel, err := telemetry.Setup("algotrader")
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Telemetry.EnableMetrics {
		metricsServer := telemetry.NewMetricsServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	holidays, err := config.LoadHolidays(cfg.System.HolidaysFile)
	if err != nil {
		logger.Warn("Failed to load holidays, treating every weekday as a trading day", "error", err)
	}

	notifier := buildNotifier(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "accounts",
		MaxWorkers:  len(cfg.Accounts),
		MaxCapacity: len(cfg.Accounts),
	}, logger)

	for _, account := range cfg.Accounts {
		gateway, ticker, err := buildConnectors(account, logger)
		if err != nil {
			logger.Error("Skipping account", "account", account.ShortCode, "error", err)
			continue
		}

		a := algo.New(account, cfg, gateway, ticker, holidays, notifier, logger)
		for _, factory := range strategyFactories(account) {
			a.AddStrategy(factory)
		}

		pool.Submit(func() {
			args := map[string]string{
				"api_key":    account.AppKey,
				"api_secret": account.AppSecret,
				"client_id":  account.ClientID,
			}
			if err := a.Run(ctx, args); err != nil {
				logger.Error("Account run failed", "account", account.ShortCode, "error", err)
			}
		})
	}

	pool.Stop()
	logger.Info("All accounts stopped")
}

// buildConnectors picks the order gateway and the market data feed for
// one account. Only the simulated broker is bundled; a non-empty
// ticker URL swaps the simulated feed for the broker's websocket one.
func buildConnectors(account models.Account, logger core.Logger) (broker.Broker, broker.Ticker, error) {
	switch account.BrokerName {
	case "mock", "paper":
		gateway := mock.NewBroker()
		if account.TickerURL != "" {
			return gateway, broker.NewStreamTicker(account.TickerURL, logger), nil
		}
		return gateway, mock.NewTicker(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported broker %q", account.BrokerName)
	}
}

func strategyFactories(account models.Account) []algo.StrategyFactory {
	factories := []algo.StrategyFactory{
		func(deps strategy.Deps) strategy.Strategy {
			return strategy.NewManual(deps, account.Multiple)
		},
	}
	switch account.AlgoType {
	case "option_seller":
		factories = append(factories, func(deps strategy.Deps) strategy.Strategy {
			return strategy.NewOptionSeller(deps, account.Multiple, optionSellerLots)
		})
	}
	return factories
}

// buildNotifier wires the alert channels whose credentials are present
// in the environment. No credentials means a quiet notifier.
func buildNotifier(logger core.Logger) *alert.Notifier {
	n := alert.NewNotifier(logger)
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		n.AddChannel(alert.NewSlackChannel(url))
	}
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if token != "" && chatID != "" {
		n.AddChannel(alert.NewTelegramChannel(token, chatID))
	}
	return n
}
