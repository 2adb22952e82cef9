// Command watchlist runs the full funding-rate ranking and turbo fast-path
// pipeline: C1 market data, C2/C3 filter-and-rank watchlist refresh, C4
// streaming fusion, and C5 turbo controller, wired together and run until
// a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"market_maker/internal/alert"
	"market_maker/internal/bootstrap"
	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/infrastructure/health"
	"market_maker/internal/infrastructure/server"
	"market_maker/internal/marketdata"
	"market_maker/internal/risk"
	"market_maker/internal/stream"
	"market_maker/internal/turbo"
	"market_maker/internal/watchlist"
	"market_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("watchlist: %v", err)
	}
}

func run(configPath string) error {
	app, err := bootstrap.NewApp(configPath)
	if err != nil {
		return err
	}
	cfg := app.Cfg
	logger := app.Logger

	var telem *telemetry.Telemetry
	if cfg.Telemetry.EnableMetrics {
		telem, err = telemetry.Setup("market_maker_watchlist")
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer telem.Shutdown(context.Background())
	}
	metrics := telemetry.GetGlobalMetrics()

	market := marketdata.NewClient(cfg.Exchange, logger, 8, 16)

	volatility := risk.NewVolatilityCache(
		time.Duration(cfg.VolatilityTTLSec)*time.Second,
		30,
	)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	universe, err := discoverUniverse(bootCtx, cfg.Categorie, market)
	bootCancel()
	if err != nil {
		return fmt.Errorf("initial universe discovery: %w", err)
	}

	manager := watchlist.NewManager(*cfg, market, volatility, logger, metrics)
	layer := stream.NewLayerFromConfig(*cfg, universe, logger, metrics)
	layer.Subscribe(volatility)

	circuit := risk.NewCircuitBreaker(risk.CircuitConfig{
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		MaxDrawdownAmount:    decimal.NewFromFloat(cfg.Risk.MaxDrawdownAmount),
		MaxDrawdownPercent:   decimal.NewFromFloat(cfg.Risk.MaxDrawdownPercent),
		CooldownPeriod:       time.Duration(cfg.Risk.CooldownPeriodS) * time.Second,
	})

	alertManager := alert.NewAlertManager(logger)
	wireAlertChannels(alertManager, cfg.Alerting)
	controller := turbo.NewController(*cfg, layer, market, market, circuit, volatility,
		alertManager.WithLevel(alert.Critical), logger, metrics)

	driver := &turboDriver{manager: manager, controller: controller, interval: refreshInterval(*cfg)}

	healthManager := health.NewHealthManager(logger)
	healthManager.Register("watchlist", func() error {
		if _, ok := manager.ActiveSet(); !ok {
			return fmt.Errorf("no watchlist refresh has completed yet")
		}
		return nil
	})
	healthManager.Register("circuit_breaker", func() error {
		if circuit.IsTripped() {
			return fmt.Errorf("circuit breaker tripped")
		}
		return nil
	})
	healthSrv := server.NewHealthServer(cfg.System.HealthPort, logger, healthManager)

	return app.Run(
		funcRunner(func(ctx context.Context) error { layer.Start(ctx); <-ctx.Done(); layer.Stop(); return nil }),
		funcRunner(func(ctx context.Context) error { manager.Run(ctx); <-ctx.Done(); manager.Stop(); return nil }),
		funcRunner(func(ctx context.Context) error {
			healthSrv.Start()
			<-ctx.Done()
			return healthSrv.Stop(context.Background())
		}),
		driver,
	)
}

// wireAlertChannels registers Telegram and Slack sinks when their
// credentials are configured; an unconfigured channel is left out so
// AlertManager.Alert never fires a doomed HTTP call.
func wireAlertChannels(am *alert.AlertManager, cfg config.AlertingConfig) {
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		am.AddChannel(alert.NewTelegramChannel(string(cfg.TelegramBotToken), cfg.TelegramChatID))
	}
	if cfg.SlackWebhookURL != "" {
		am.AddChannel(alert.NewSlackChannel(string(cfg.SlackWebhookURL)))
	}
}

// discoverUniverse fetches the initial symbol->category map so C4's two
// category connections can be built before the first watchlist cycle runs.
func discoverUniverse(ctx context.Context, categorie string, market core.IMarketDataClient) (map[string]core.Category, error) {
	cats := []core.Category{core.CategoryLinear, core.CategoryInverse}
	switch categorie {
	case "linear":
		cats = []core.Category{core.CategoryLinear}
	case "inverse":
		cats = []core.Category{core.CategoryInverse}
	}

	universe := make(map[string]core.Category)
	for _, cat := range cats {
		bySymbol, err := market.FetchUniverse(ctx, cat)
		if err != nil {
			return nil, err
		}
		for symbol, c := range bySymbol {
			universe[symbol] = c
		}
	}
	return universe, nil
}

func refreshInterval(cfg bootstrap.Config) time.Duration {
	if cfg.Turbo.RefreshMs > 0 {
		return time.Duration(cfg.Turbo.RefreshMs) * time.Millisecond
	}
	return time.Second
}

// funcRunner adapts a plain function to bootstrap.Runner.
type funcRunner func(ctx context.Context) error

func (f funcRunner) Run(ctx context.Context) error { return f(ctx) }

// turboDriver periodically hands the current watchlist ActiveSet to the
// turbo controller so it can evaluate activation conditions.
type turboDriver struct {
	manager    *watchlist.Manager
	controller *turbo.Controller
	interval   time.Duration
}

func (d *turboDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.controller.Shutdown()
			return nil
		case <-ticker.C:
			active, ok := d.manager.ActiveSet()
			if !ok {
				continue
			}
			d.controller.CheckCandidates(ctx, active)
		}
	}
}
