package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/littlekickoffkittie/flash/internal/config"
	"github.com/littlekickoffkittie/flash/internal/engine"
	"github.com/littlekickoffkittie/flash/internal/events"
	"github.com/littlekickoffkittie/flash/internal/metrics"
	"github.com/littlekickoffkittie/flash/internal/venue/onchain"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := engine.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	client, err := onchain.Dial(ctx, cfg.Chain.RPCHTTP, cfg.Chain.WalletPK, cfg.Chain.GasLimit, logger)
	if err != nil {
		logger.Fatal("chain dial failed", zap.Error(err))
	}

	var mc *onchain.Multicall
	if cfg.Multicall != "" {
		mc, err = onchain.NewMulticall(client, common.HexToAddress(cfg.Multicall))
		if err != nil {
			logger.Fatal("multicall init failed", zap.Error(err))
		}
	}

	venueA, err := buildVenue(ctx, client, cfg.Venues.A, mc, logger)
	if err != nil {
		logger.Fatal("venue A init failed", zap.Error(err))
	}
	venueB, err := buildVenue(ctx, client, cfg.Venues.B, mc, logger)
	if err != nil {
		logger.Fatal("venue B init failed", zap.Error(err))
	}

	tokens, err := onchain.NewTokens(client)
	if err != nil {
		logger.Fatal("token ledger init failed", zap.Error(err))
	}

	feeds := make(map[common.Address]common.Address, len(cfg.Oracle.Feeds))
	for asset, feed := range cfg.Oracle.Feeds {
		feeds[common.HexToAddress(asset)] = common.HexToAddress(feed)
	}
	oracle, err := onchain.NewOracle(client, feeds)
	if err != nil {
		logger.Fatal("oracle init failed", zap.Error(err))
	}

	lenderAddr := common.HexToAddress(cfg.Lender.Pool)
	lender, err := onchain.NewLender(client, lenderAddr, logger)
	if err != nil {
		logger.Fatal("lender init failed", zap.Error(err))
	}

	sink := events.MultiSink{events.NewLogSink(logger)}
	if cfg.Redis.Addr != "" {
		pub := events.NewPublisher(events.RedisOptions{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			Stream:   cfg.Redis.Stream,
		})
		defer pub.Close()
		sink = append(sink, pub)
	}

	maxLoan, err := config.ParseAmount(cfg.Risk.MaxLoanAmount)
	if err != nil {
		logger.Fatal("bad max loan amount", zap.Error(err))
	}
	maxDailyLoss, err := config.ParseAmount(cfg.Risk.MaxDailyLoss)
	if err != nil {
		logger.Fatal("bad max daily loss", zap.Error(err))
	}

	owner := client.Sender()
	eng, err := engine.New(engine.Deps{
		Owner:         owner,
		Self:          owner,
		Lender:        lenderAddr,
		LenderService: lender,
		VenueA:        venueA,
		VenueB:        venueB,
		Tokens:        tokens,
		Oracle:        oracle,
		Gas:           client,
		Meter:         client,
		Sink:          sink,
		Log:           logger,
		Config: engine.ArbitrageConfig{
			MaxSlippageBps:  cfg.Risk.MaxSlippageBps,
			MinProfitBps:    cfg.Risk.MinProfitBps,
			MaxGasPrice:     cfg.MaxGasPriceWei(),
			MaxLoanAmount:   maxLoan,
			DynamicSlippage: cfg.Risk.DynamicSlippage,
		},
		MaxDailyLoss: maxDailyLoss,
	})
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	for _, a := range cfg.Assets {
		cap, err := config.ParseAmount(a.MaxLoanAmount)
		if err != nil {
			logger.Fatal("bad asset cap", zap.String("asset", a.Address), zap.Error(err))
		}
		if err := eng.WhitelistAsset(owner, common.HexToAddress(a.Address), cap, a.SlippageBps, a.RequiresOracle); err != nil {
			logger.Fatal("whitelist failed", zap.String("asset", a.Address), zap.Error(err))
		}
	}

	borrow := common.HexToAddress(cfg.Trade.BorrowAsset)
	target := common.HexToAddress(cfg.Trade.TargetAsset)
	amount, err := config.ParseAmount(cfg.Trade.Amount)
	if err != nil {
		logger.Fatal("bad trade amount", zap.Error(err))
	}
	expected, err := config.ParseAmount(cfg.Trade.ExpectedProfit)
	if err != nil {
		logger.Fatal("bad expected profit", zap.Error(err))
	}

	logger.Info("flash arbitrage executor started",
		zap.String("borrow", borrow.Hex()),
		zap.String("target", target.Hex()),
		zap.Bool("dry_run", cfg.DryRun),
	)

	ticker := time.NewTicker(cfg.TradeInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("flash-arb finished")
			return
		case <-ticker.C:
			if cfg.DryRun {
				logger.Info("DRY-RUN: skipping execution",
					zap.String("remaining_quota", eng.RemainingDailyQuota(borrow).String()))
				continue
			}
			if err := eng.InitiateArbitrage(ctx, owner, borrow, amount, target, expected); err != nil {
				logger.Warn("arbitrage attempt rejected", zap.Error(err))
			}
		}
	}
}

func buildVenue(ctx context.Context, client *onchain.Client, vc config.VenueCfg, mc *onchain.Multicall, logger *zap.Logger) (engine.Venue, error) {
	routerAddr := common.HexToAddress(vc.Router)
	router, err := onchain.NewRouter(client, routerAddr, logger)
	if err != nil {
		return engine.Venue{}, err
	}
	factory, err := router.Factory(ctx)
	if err != nil {
		return engine.Venue{}, err
	}
	pairs, err := onchain.NewPairSource(client, factory, mc)
	if err != nil {
		return engine.Venue{}, err
	}
	return engine.Venue{
		Name:    vc.Name,
		Router:  router,
		Pairs:   pairs,
		Spender: routerAddr,
	}, nil
}
