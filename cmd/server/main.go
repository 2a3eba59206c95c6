package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/betbot/astergate/aster/client"
	"github.com/betbot/astergate/aster/signing"
	"github.com/betbot/astergate/internal/metrics"
	"github.com/betbot/astergate/internal/server"
	"github.com/betbot/astergate/internal/services"
	"github.com/betbot/astergate/pkg/config"
	"github.com/betbot/astergate/pkg/logger"
	"github.com/betbot/astergate/pkg/ratelimit"
	"github.com/betbot/astergate/pkg/shutdown"
)

var version = server.DefaultVersion

func main() {
	var (
		cfgPath    = flag.String("config", "", "optional YAML config file (env "+config.EnvConfigPath+")")
		envFile    = flag.String("env-file", ".env", ".env file loaded before reading the environment")
		listenAddr = flag.String("listen", "", "override SERVER_HOST:SERVER_PORT")
	)
	flag.Parse()

	// 配置加载前先用默认日志，保证加载错误也经过脱敏输出
	if err := logger.InitDefault(); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err.Error())
		os.Exit(1)
	}

	cfg, err := config.Load(config.Options{File: *cfgPath, EnvFiles: []string{*envFile}})
	if err != nil {
		logger.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.File,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
		NoColor:    cfg.Log.Format == "json",
	}); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err.Error())
		os.Exit(1)
	}

	logger.WithFields(logger.RedactMap(cfg.Safe())).Infof("%s v%s 启动", server.ServiceName, version)
	if f := logger.GetCurrentLogFile(); f != "" {
		logger.Infof("日志文件: %s", f)
	}
	if len(cfg.SecretsLoaded) > 0 {
		logger.Infof("已从 secret 库加载: %v", cfg.SecretsLoaded)
	}

	auth, err := newAuthorizer(cfg)
	if err != nil {
		logger.Errorf("初始化签名器失败: %v", err)
		os.Exit(1)
	}
	if auth == nil {
		logger.Warnf("交易凭证不完整，签名接口不可用: %s", cfg.MissingCredential())
	}

	var opts []client.Option
	if cfg.Client.OutboundRateLimit > 0 {
		burst := int(math.Ceil(cfg.Client.OutboundRateLimit))
		tb := ratelimit.NewTokenBucket(burst, cfg.Client.OutboundRateLimit)
		opts = append(opts, client.WithLimiter(tb))
		metrics.PublishFunc("outbound_tokens_remaining", func() any { return tb.GetRemaining() })
	}
	ac := client.New(client.Config{
		BaseURL:        cfg.AsterDEX.BaseURL,
		Timeout:        cfg.Client.RequestTimeout.Std(),
		MaxRetries:     cfg.Client.MaxRetries,
		RetryBaseDelay: cfg.Client.RateLimitRetryDelay.Std(),
		UserAgent:      "astergate/" + version,
	}, auth, opts...)

	positions := services.NewPositionService(ac)
	account := services.NewAccountService(ac, cfg.Trading.BalanceCacheTTL.Std())
	srv := server.New(server.Config{
		WebhookSecret: cfg.Server.WebhookSecret,
		APIKey:        cfg.Server.APIKey,
		Version:       version,
		RetryAfter:    cfg.Client.RateLimitRetryDelay.Std(),
		Health: server.HealthInfo{
			Ready:         cfg.Ready(),
			NotReadyCause: cfg.MissingCredential(),
			Configuration: cfg.Safe(),
		},
	}, server.Services{
		Trading:   services.NewTradingService(ac, positions),
		Positions: positions,
		Account:   account,
		Orders:    services.NewOrderService(ac),
	})

	addr := cfg.Addr()
	if *listenAddr != "" {
		addr = *listenAddr
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		// 单个 webhook 最多触发 close+open 两笔下单和多次持仓查询
		WriteTimeout: 4*cfg.Client.RequestTimeout.Std() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sm := shutdown.NewManager()
	sm.OnShutdown("asterdex client", func(ctx context.Context) error {
		ac.Close()
		return nil
	})
	sm.OnShutdownParallel("balance cache", func(ctx context.Context) error {
		account.ClearCache()
		return nil
	})
	sm.OnShutdown("http server", httpSrv.Shutdown)

	if cfg.Metrics.Listen != "" {
		ms, err := metrics.StartAsync(cfg.Metrics.Listen)
		if err != nil {
			logger.Errorf("启动 metrics 服务失败: %v", err)
			os.Exit(1)
		}
		sm.OnShutdownParallel("metrics server", ms.Shutdown)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, unix.SIGTERM, unix.SIGQUIT)

	exitCode := 0
	select {
	case sig := <-stopCh:
		logger.Infof("收到信号 %s，开始关闭", sig)
	case err, ok := <-serveErr:
		if ok && err != nil {
			logger.Errorf("http server error: %v", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sm.Shutdown(ctx); err != nil {
		logger.Errorf("关闭未完成: %v", err)
		exitCode = 1
	}
	logger.Info("server stopped")
	os.Exit(exitCode)
}

// newAuthorizer 凭证不全时返回 nil，服务以降级模式启动
func newAuthorizer(cfg *config.Config) (client.Authorizer, error) {
	if !cfg.Ready() {
		return nil, nil
	}
	s, err := signing.NewSigner(cfg.AsterDEX.UserAddress, cfg.AsterDEX.SignerAddress, cfg.AsterDEX.PrivateKey)
	if err != nil {
		return nil, err
	}
	logger.Infof("签名账户 user=%s signer=%s", s.User(), s.Address())
	return s, nil
}
