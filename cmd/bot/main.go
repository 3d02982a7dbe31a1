package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/controller"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/exchange"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/oms"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/logger"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/shutdown"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/client"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/signing"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 可选，缺失时直接用进程环境变量
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(client.Options{
		BaseURL:           cfg.APIBaseURL,
		APIKey:            cfg.Credentials.APIKey,
		JWT:               cfg.Credentials.JWT,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	builder, err := signing.NewBuilder(signing.BuilderOptions{
		PrivateKeyHex:        cfg.Credentials.PrivateKey,
		PredictAccount:       cfg.Signing.PredictAccount,
		ChainID:              cfg.Signing.ChainID,
		Exchange:             cfg.Signing.Exchange,
		NegRiskExchange:      cfg.Signing.NegRiskExchange,
		YieldBearingExchange: cfg.Signing.YieldBearingExchange,
	})
	if err != nil {
		return fmt.Errorf("签名器初始化失败: %w", err)
	}

	auth := exchange.NewAuthAdapter(api, builder)
	if cfg.Credentials.JWT == "" {
		logger.Info("未提供 JWT，通过钱包签名登录...")
		if _, err := auth.RefreshAuthToken(ctx); err != nil {
			return fmt.Errorf("登录失败: %w", err)
		}
		logger.Info("✓ 登录成功")
	}

	trading := exchange.NewTradingAdapter(api)
	signer := exchange.NewSignerAdapter(builder)
	store := cfg.SettingsFor()

	ctrl := controller.New(store, quoteLogger(), controller.Options{
		SettleDelay: cfg.RepriceSettleDelay(),
		LockTimeout: cfg.LockTimeout(),
		QueueSize:   16,
	})

	for _, m := range cfg.Markets {
		mj, err := api.GetMarket(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("获取市场 %s 元数据失败: %w", m.ID, err)
		}
		info := exchange.MarketInfoFromJSON(mj)
		logger.Infof("市场 %s: %s (精度=%d, 费率=%dbps)", info.ID, info.Title, info.DecimalPrecision, info.FeeRateBps)

		manager, err := oms.NewManager(info, trading, signer, auth, oms.DefaultOptions())
		if err != nil {
			return fmt.Errorf("市场 %s 初始化失败: %w", m.ID, err)
		}
		if err := ctrl.AddMarket(ctx, manager); err != nil {
			return err
		}
		if store.Get(m.ID).Enabled {
			_ = ctrl.EnableQuoting(m.ID)
		}

		// REST 快照兜底：WS 第一条推送到达前先有一份盘口
		if ob, err := api.GetOrderbook(ctx, m.ID); err == nil {
			ctrl.OnOrderBook(ctx, exchange.SnapshotFromJSON(m.ID, *ob))
		} else {
			logger.Warnf("市场 %s 的初始盘口获取失败: %v", m.ID, err)
		}
	}

	feed := websocket.NewFeed(cfg.WSURL, cfg.Credentials.APIKey)
	feed.OnOrderbook(func(marketID string, book types.OrderbookJSON) {
		ctrl.OnOrderBook(ctx, exchange.SnapshotFromJSON(marketID, book))
	})
	feed.OnConnectionChange(func(connected bool) {
		if connected {
			logger.Info("✓ WebSocket 已连接")
		} else {
			logger.Warn("WebSocket 断开，等待重连")
		}
	})
	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("WebSocket 连接失败: %w", err)
	}
	for _, m := range cfg.Markets {
		if err := feed.Subscribe(m.ID); err != nil {
			logger.Warnf("订阅市场 %s 失败: %v", m.ID, err)
		}
	}

	sd := shutdown.NewManager()
	sd.OnShutdown(func(ctx context.Context) {
		feed.Close()
	})
	sd.OnShutdown(func(ctx context.Context) {
		// 退出前撤掉所有挂单，避免无人看管的报价留在盘口
		for _, m := range cfg.Markets {
			_ = ctrl.DisableQuoting(ctx, m.ID)
		}
		ctrl.Close()
	})

	logger.Infof("✓ 做市机器人已启动，共 %d 个市场", len(cfg.Markets))
	<-ctx.Done()

	logger.Info("收到退出信号，开始关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sd.Shutdown(shutdownCtx)
	return nil
}

// quoteLogger 把每轮报价状态写进 debug 日志
func quoteLogger() ports.QuoteSink {
	return ports.QuoteSinkFunc(func(u ports.QuoteUpdate) {
		if u.Quote == nil {
			return
		}
		logger.WithField("market", u.MarketID).Debugf(
			"报价: mid=%.4f yes=%.4f(可挂=%v) no=%.4f(可挂=%v) 已挂=%d 已撤=%d",
			u.Quote.MidYes,
			u.Quote.Yes.Price, u.Quote.Yes.CanPlace,
			u.Quote.No.Price, u.Quote.No.CanPlace,
			u.Stats.Placed, u.Stats.Cancelled,
		)
	})
}
