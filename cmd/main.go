// Command xcoin runs the trading core against a configured venue: live
// centralized (binance), live decentralized (hyperliquid), or the local
// simulator in paper/backtest mode.
//
// Usage:
//
//	xcoin --config config.yaml
//
// Credentials come from the config secrets block or environment variables
// (BINANCE_API_KEY, BINANCE_API_SECRET, HYPERLIQUID_WALLET).
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/config"
	"github.com/daniel-lucas-silva/xcoin/internal/app"
	"github.com/daniel-lucas-silva/xcoin/internal/clients"
	"github.com/daniel-lucas-silva/xcoin/internal/connector"
	"github.com/daniel-lucas-silva/xcoin/internal/events"
	"github.com/daniel-lucas-silva/xcoin/internal/feed"
	"github.com/daniel-lucas-silva/xcoin/internal/sim"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/balancesnapshots"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/filljournal"
	"github.com/daniel-lucas-silva/xcoin/pkg/retry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the session config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Fatal("session failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	policy := retry.New(logger,
		retry.WithQuietOps("getTrades", "getKLines", "getTickers"))

	registry := connector.NewRegistry()
	registry.Register("binance", func() (connector.Connector, error) {
		creds := cfg.CredentialsFor("binance")
		if creds.Missing() {
			return nil, connector.ErrMissingCredentials
		}
		return connector.NewBinance(connector.BinanceConfig{
			Client:     clients.NewBinanceClient(creds.Key, creds.Secret),
			CatalogDir: cfg.CatalogDir,
			Retry:      policy,
			Logger:     logger,
			MakerFee:   cfg.MakerFee,
			TakerFee:   cfg.TakerFee,
		})
	})
	registry.Register("hyperliquid", func() (connector.Connector, error) {
		creds := cfg.CredentialsFor("hyperliquid")
		if creds.Missing() {
			return nil, connector.ErrMissingCredentials
		}
		client, err := clients.NewHyperliquidClient(creds.Wallet, "")
		if err != nil {
			return nil, err
		}
		return connector.NewHyperliquid(connector.HyperliquidConfig{
			Exchange:    client.Exchange(),
			AccountAddr: client.AccountAddress(),
			CatalogDir:  cfg.CatalogDir,
			Retry:       policy,
			Logger:      logger,
			SlippagePct: cfg.SlippagePct,
			Leverage:    cfg.Leverage,
			Isolated:    cfg.Isolated,
			MakerFee:    cfg.MakerFee,
			TakerFee:    cfg.TakerFee,
		})
	})
	registry.SetDefault("binance")

	conn, err := registry.New(cfg.Venue)
	if err != nil {
		return err
	}

	if cfg.Mode != config.ModeLive {
		journal, err := filljournal.New(cfg.JournalDir)
		if err != nil {
			return err
		}
		defer journal.Close()

		conn = sim.New(sim.Config{
			Market:      conn,
			Backtest:    cfg.Mode == config.ModeBacktest,
			Latency:     cfg.Latency,
			SettleDelay: cfg.SettleDelay,
			SlippagePct: cfg.SlippagePct,
			Future:      cfg.Future,
			Leverage:    cfg.Leverage,
			Isolated:    cfg.Isolated,
			MakerFee:    cfg.MakerFee,
			TakerFee:    cfg.TakerFee,
			Currency:    cfg.Currency,
			Asset:       cfg.Asset,
			Journal:     journal,
			StateDir:    cfg.StateDir,
			Logger:      logger,
		})
	}

	bus := events.NewBus(16)
	session := app.New(cfg, conn, bus, logger)

	snapshots, err := balancesnapshots.NewWALStore("")
	if err != nil {
		return err
	}
	defer snapshots.Close()
	session.SetSnapshotStore(snapshots)

	if err := session.Warmup(ctx); err != nil {
		return err
	}

	if cfg.Mode == config.ModePaper {
		for _, inst := range session.Products() {
			session.AddFeed(feed.NewTradeFeed(session.Connector(), inst.ProductID, time.Second, logger))
		}
		// secondary price source, useful when the primary venue rate-limits
		if creds := cfg.CredentialsFor("bybit"); !creds.Missing() {
			bybitClient := clients.NewBybitClient(creds.Key, creds.Secret)
			for _, inst := range session.Products() {
				session.AddFeed(feed.NewBybitTickerFeed(bybitClient, inst.Asset+inst.Currency, inst.ProductID, 5*time.Second, logger))
			}
		}
	}

	return session.Run(ctx)
}
