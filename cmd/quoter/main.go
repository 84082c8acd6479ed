package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quoter-go/config"
	"quoter-go/exchange"
	"quoter-go/infrastructure/logger"
	"quoter-go/internal/engine"
	"quoter-go/monitor"
	"quoter-go/risk"
	"quoter-go/store"
	"quoter-go/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	paper := flag.Bool("paper", true, "使用内置纸面交易所")
	paperBase := flag.String("paperBase", "1000000", "纸面交易所初始基础币余额")
	paperQuote := flag.String("paperQuote", "1000", "纸面交易所初始计价币余额")
	paperMid := flag.String("paperMid", "0.0000375", "纸面交易所初始中间价")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		// 配置错误是致命的：带着错误的风控参数起不得
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	if !*paper {
		zlog.Fatal("no live venue wired in this build, run with -paper")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, venue := buildPaperVenue(ctx, zlog, cfg, *paperBase, *paperQuote, *paperMid)

	// 场所精度元数据优先于配置文件
	metaCtx, metaCancel := context.WithTimeout(ctx, 5*time.Second)
	meta, err := client.GetPairMetadata(metaCtx, cfg.Pair.Symbol)
	metaCancel()
	if err != nil {
		zlog.Fatal("load pair metadata", zap.Error(err))
	}

	sinks := monitor.MultiSink{monitor.NewLogSink(zlog)}

	if cfg.Monitor.MetricsAddr != "" {
		metrics := monitor.NewMetrics(monitor.DefaultMetricsConfig())
		sinks = append(sinks, metrics)
		go serveHTTP(zlog, cfg.Monitor.MetricsAddr, "/metrics", metrics.Handler())
	}

	var hub *monitor.Hub
	if cfg.Monitor.DashboardAddr != "" {
		hub = monitor.NewHub(zlog)
		sinks = append(sinks, hub)
		go serveHTTP(zlog, cfg.Monitor.DashboardAddr, "/ws", hub)
	}

	var fillStore engine.FillStore
	if cfg.Store.TradesDB != "" {
		ts, err := store.Open(cfg.Store.TradesDB)
		if err != nil {
			zlog.Fatal("open trades db", zap.Error(err))
		}
		defer ts.Close()
		fillStore = ts
		zlog.Info("trade persistence enabled", zap.String("path", cfg.Store.TradesDB))
	}

	eng, err := engine.New(engine.Config{
		Pair:            cfg.Pair.Symbol,
		RefreshInterval: time.Duration(cfg.Engine.RefreshIntervalSec) * time.Second,
		RequestTimeout:  time.Duration(cfg.Engine.RequestTimeoutMs) * time.Millisecond,
		ShutdownGrace:   time.Duration(cfg.Engine.ShutdownGraceMs) * time.Millisecond,
		MaxOpenOrders:   cfg.Risk.MaxOpenOrders,
	}, engine.Components{
		Client:   client,
		Strategy: strategyConfig(cfg, meta),
		Risk:     riskManager(cfg),
		Sink:     sinks,
		Store:    fillStore,
		Logger:   zlog,
	})
	if err != nil {
		zlog.Fatal("init engine", zap.Error(err))
	}

	if venue != nil {
		go venue.RandomWalk(ctx, time.Second, 0.001)
	}

	if err := eng.Start(ctx); err != nil {
		zlog.Fatal("start engine", zap.Error(err))
	}

	// 配置漂移只告警，运行中的引擎坚持启动时配置
	watcher := config.Watcher{Path: *cfgPath, Cooldown: time.Second}
	go func() {
		err := watcher.Start(ctx, func(d config.DriftReport) {
			if d.Err != nil {
				zlog.Warn("config drift with invalid content, restart would fail",
					zap.String("path", d.Path), zap.Error(d.Err))
				return
			}
			zlog.Warn("config drifted on disk, restart to apply", zap.String("path", d.Path))
		})
		if err != nil {
			zlog.Warn("config watcher disabled", zap.Error(err))
		}
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdog(ctx, eng)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zlog.Info("signal received, shutting down", zap.String("signal", sig.String()))

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	eng.Stop()
	if hub != nil {
		hub.Close()
	}
	cancel()
	zlog.Info("quoter exited")
}

func buildPaperVenue(ctx context.Context, zlog *zap.Logger, cfg config.AppConfig, base, quote, mid string) (exchange.Client, *exchange.Paper) {
	d := func(s, name string) decimal.Decimal {
		v, err := decimal.NewFromString(s)
		if err != nil {
			zlog.Fatal("invalid flag value", zap.String("flag", name), zap.String("value", s))
		}
		return v
	}
	venue := exchange.NewPaper(cfg.Pair.Symbol, exchange.PairMetadata{
		PriceDecimals:    cfg.Pair.PriceDecimals,
		QuantityDecimals: cfg.Pair.QuantityDecimals,
	}, d(base, "paperBase"), d(quote, "paperQuote"), d(mid, "paperMid"))

	throttled := exchange.NewThrottled(venue,
		cfg.Engine.RestRate, cfg.Engine.RestBurst,
		time.Duration(cfg.Engine.RequestTimeoutMs)*time.Millisecond)
	zlog.Info("paper venue ready", zap.String("pair", cfg.Pair.Symbol), zap.String("mid", mid))
	return throttled, venue
}

func strategyConfig(cfg config.AppConfig, meta exchange.PairMetadata) strategy.Config {
	return strategy.Config{
		SpreadPct:          cfg.Strategy.SpreadPct,
		NumLevels:          cfg.Strategy.NumLevels,
		LevelStepPct:       cfg.Strategy.LevelStepPct,
		BaseQuantity:       cfg.Strategy.BaseQuantity,
		QuantityMultiplier: cfg.Strategy.QuantityMultiplier,
		MinSpreadPct:       cfg.Strategy.MinSpreadPct,
		SkewMultiplier:     cfg.Strategy.SkewMultiplier,
		BalanceUsageCap:    cfg.Risk.BalanceUsageCap,
		PriceDecimals:      meta.PriceDecimals,
		QuantityDecimals:   meta.QuantityDecimals,
	}
}

func riskManager(cfg config.AppConfig) *risk.Manager {
	return risk.NewManager(risk.Config{
		MaxBaseExposure:      cfg.Risk.MaxBaseExposure,
		MaxQuoteExposure:     cfg.Risk.MaxQuoteExposure,
		StopLossUSDT:         cfg.Risk.StopLossUSDT,
		DailyLossLimitUSDT:   cfg.Risk.DailyLossLimitUSDT,
		TargetInventoryRatio: cfg.Risk.TargetInventoryRatio,
		MaxSkew:              cfg.Risk.MaxSkew,
	})
}

func serveHTTP(zlog *zap.Logger, addr, path string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	zlog.Info("http listener up", zap.String("addr", addr), zap.String("path", path))
	if err := http.ListenAndServe(addr, mux); err != nil {
		zlog.Error("http listener failed", zap.String("addr", addr), zap.Error(err))
	}
}

// watchdog 按 systemd 要求的节奏喂狗；引擎卡死在某个阶段时停止喂。
func watchdog(ctx context.Context, eng *engine.Engine) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	lastCycle := uint64(0)
	stuckSince := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec := eng.LastRecord()
			if rec.Cycle != lastCycle || eng.Phase() == engine.PhaseIdle {
				lastCycle = rec.Cycle
				stuckSince = time.Time{}
				daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				continue
			}
			if stuckSince.IsZero() {
				stuckSince = time.Now()
			}
			// 周期没有推进且不在空闲态，超过两个看门狗间隔就任由 systemd 重启
			if time.Since(stuckSince) < interval {
				daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}
}
