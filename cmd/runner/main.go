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
	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/engine"
	"trade-executor-go/gateway"
	"trade-executor-go/infrastructure/alert"
	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/market"
	"trade-executor-go/metrics"
	sig "trade-executor-go/signal"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	dryRun := flag.Bool("dryRun", false, "log orders instead of sending them")
	metricsAddr := flag.String("metricsAddr", "", "metrics listen address, overrides config")
	restRate := flag.Float64("restRate", 5, "REST rate limit: tokens per second")
	restBurst := flag.Int("restBurst", 10, "REST rate limit: burst size")
	signalPollMs := flag.Int("signalPollMs", 1000, "signal service poll interval")
	alertWebhook := flag.String("alertWebhook", "", "optional webhook URL for critical alerts")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer lg.Close()

	mon := metrics.New(metrics.DefaultConfig())
	listen := cfg.Metrics.Listen
	if *metricsAddr != "" {
		listen = *metricsAddr
	}
	var metricsSrv *http.Server
	if listen != "" {
		metricsSrv = mon.StartServer(listen)
		lg.Info("metrics server listening", zap.String("addr", listen))
	}

	var broker gateway.Broker
	if *dryRun {
		broker = gateway.NewSimBroker()
		lg.Warn("dry run: orders go to the simulated broker")
	} else {
		rest := gateway.NewRESTBroker(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
		rest.Limiter = gateway.NewTokenBucketLimiter(*restRate, *restBurst)
		broker = rest
	}

	md := market.NewService(time.Minute)
	signals := sig.NewHTTPPoller(cfg.Gateway.BaseURL, cfg.Gateway.APIKey,
		time.Duration(*signalPollMs)*time.Millisecond, lg.Logger)

	mgr, err := engine.NewManager(&cfg, broker, md, signals, mon, lg.Logger)
	if err != nil {
		lg.Fatal("build engine manager failed", zap.Error(err))
	}

	channels := []alert.Channel{alert.NewZapChannel("log", lg.Logger)}
	if *alertWebhook != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", *alertWebhook))
	}
	mgr.SetNotifier(alert.NewNotifier(channels, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := gateway.NewStreamClient(cfg.Gateway.StreamURL, cfg.Gateway.APIKey, lg.Logger)
	for _, ticker := range mgr.Tickers() {
		if err := stream.Subscribe(ticker); err != nil {
			lg.Fatal("subscribe failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	go stream.RunLoop(ctx, mgr, md)
	go signals.RunLoop(ctx, mgr.Tickers())

	watcher, err := config.NewWatcher(*cfgPath, 2*time.Second)
	if err != nil {
		lg.Warn("config watcher disabled", zap.Error(err))
	} else {
		err := watcher.Start(ctx, func(next config.AppConfig) {
			// Assignments are bound at engine construction; a changed file
			// takes effect on the next restart.
			lg.Warn("config file changed, restart to apply",
				zap.String("env", next.Env),
				zap.Int("assignments", len(next.Assignments)))
		})
		if err != nil {
			lg.Warn("config watcher start failed", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	if err := mgr.Start(ctx); err != nil {
		lg.Fatal("engine start failed", zap.Error(err))
	}
	lg.Info("runner started",
		zap.String("env", cfg.Env),
		zap.Strings("tickers", mgr.Tickers()),
		zap.Bool("dryRun", *dryRun))

	daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdogLoop(ctx, interval/2)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	lg.Info("shutdown requested")
	cancel()
	mgr.Stop()
	if metricsSrv != nil {
		metricsSrv.Close()
	}
	lg.Info("runner exited")
}

func watchdogLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
