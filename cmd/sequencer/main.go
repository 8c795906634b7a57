package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"meridian/config"
	"meridian/domain/market"
	"meridian/infra/kafka"
	"meridian/infra/metrics"
	"meridian/jobs/broadcaster"
	"meridian/service"
	"meridian/wire"
)

func main() {
	configPath := flag.String("config", "sequencer.yaml", "path to config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	var feed *kafka.TradeFeed
	if len(cfg.Trades.Brokers) > 0 {
		feed = kafka.NewTradeFeed(cfg.Trades.Brokers, cfg.Trades.Topic)
		defer feed.Close()
	}

	seq, err := service.Open(service.Config{
		DataDir:          cfg.DataDir,
		CheckpointEvery:  cfg.Checkpoint.Every,
		CheckpointKeep:   cfg.Checkpoint.Keep,
		QueueSegmentSize: cfg.Queue.SegmentSize,
	}, feed, m, log)
	if err != nil {
		log.Fatal("sequencer open failed", zap.Error(err))
	}
	defer seq.Close()

	bootstrapMarkets(ctx, cfg, seq, log)

	if len(cfg.Responses.Brokers) > 0 {
		bc, err := broadcaster.New(broadcaster.Config{
			Brokers:  cfg.Responses.Brokers,
			Topic:    cfg.Responses.Topic,
			Interval: cfg.Responses.Interval,
		}, seq.Outbox(), log, m)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	log.Info("sequencer running", zap.String("dataDir", cfg.DataDir))
	<-ctx.Done()

	log.Info("shutting down, writing final checkpoint")
	if err := seq.Checkpoint(); err != nil {
		log.Error("final checkpoint failed", zap.Error(err))
	}
}

// bootstrapMarkets submits an AddMarket request per configured market.
// Requests for markets that already exist come back as ErrMarketExists,
// which makes the bootstrap idempotent across restarts.
func bootstrapMarkets(ctx context.Context, cfg *config.Config, seq *service.Sequencer, log *zap.Logger) {
	for _, mc := range cfg.Markets {
		id, err := market.ParseMarketID(mc.ID)
		if err != nil {
			log.Fatal("bad market config", zap.String("id", mc.ID), zap.Error(err))
		}
		tick, err := decimal.NewFromString(mc.TickSize)
		if err != nil {
			log.Fatal("bad tick size", zap.String("market", mc.ID), zap.Error(err))
		}
		price, err := decimal.NewFromString(mc.MarketPrice)
		if err != nil {
			log.Fatal("bad market price", zap.String("market", mc.ID), zap.Error(err))
		}

		resp, err := seq.Submit(ctx, &wire.Request{
			GUID: uuid.NewString(),
			Kind: wire.KindAddMarket,
			AddMarket: &wire.AddMarketRequest{
				ID:                id,
				TickSize:          tick,
				MarketPrice:       price,
				MaxLevels:         mc.MaxLevels,
				MaxOrdersPerLevel: mc.MaxOrdersPerLevel,
				BaseDecimals:      mc.BaseDecimals,
				QuoteDecimals:     mc.QuoteDecimals,
			},
		})
		if err != nil {
			log.Fatal("market bootstrap failed", zap.String("market", mc.ID), zap.Error(err))
		}
		switch resp.Error {
		case wire.ErrNone:
			log.Info("market bootstrapped", zap.String("market", mc.ID))
		case wire.ErrMarketExists:
			// Already live from a previous run.
		default:
			log.Fatal("market bootstrap rejected",
				zap.String("market", mc.ID),
				zap.String("error", resp.Error.String()))
		}
	}
}
