package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/astergate/internal/services"
)

const (
	ServiceName    = "AsterDEX Trading API"
	DefaultVersion = "1.0.0"
)

// Config HTTP 层配置
type Config struct {
	WebhookSecret string // 为空时 webhook 不鉴权
	APIKey        string // 为空时受保护接口返回 500
	Version       string
	RetryAfter    time.Duration // 429 响应的 Retry-After

	// Health /health 输出的脱敏配置；Ready 为 false 时返回 503
	Health HealthInfo
}

// HealthInfo 健康检查使用的配置摘要
type HealthInfo struct {
	Ready         bool
	NotReadyCause string
	Configuration map[string]any
}

// Services handler 依赖的业务服务
type Services struct {
	Trading   *services.TradingService
	Positions *services.PositionService
	Account   *services.AccountService
	Orders    *services.OrderService
}

// Server webhook 与查询接口
type Server struct {
	cfg       Config
	trading   *services.TradingService
	positions *services.PositionService
	account   *services.AccountService
	orders    *services.OrderService
	now       func() time.Time
}

// New 创建 Server
func New(cfg Config, svc Services) *Server {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 2 * time.Second
	}
	return &Server{
		cfg:       cfg,
		trading:   svc.Trading,
		positions: svc.Positions,
		account:   svc.Account,
		orders:    svc.Orders,
		now:       time.Now,
	}
}

// Router 注册所有路由
func (s *Server) Router() http.Handler {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(requestID(), s.accessLog(), s.recovery())
	r.NoRoute(func(c *gin.Context) {
		s.writeError(c, notFound("Not Found"))
	})

	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusTemporaryRedirect, "/health") })
	r.GET("/health", s.handleHealth)

	webhook := r.Group("/webhook")
	webhook.POST("/signal", s.handleWebhook)
	webhook.POST("/tradingview", s.handleWebhook)
	webhook.POST("/strategy-signal", s.handleStrategyWebhook)
	webhook.POST("/tradingview-strategy", s.handleStrategyWebhook)

	protected := r.Group("/", s.requireAPIKey())

	positions := protected.Group("/positions")
	positions.GET("", s.handlePositionsList)
	positions.GET("/:symbol", s.handlePositionGet)
	positions.POST("/:symbol/leverage", s.handleLeverageUpdate)
	positions.POST("/:symbol/margin-type", s.handleMarginTypeUpdate)

	account := protected.Group("/account")
	account.GET("/balance", s.handleBalance)
	account.GET("/info", s.handleAccountInfo)

	orders := protected.Group("/orders")
	orders.GET("", s.handleOrdersList)
	orders.GET("/open", s.handleOpenOrders)
	orders.GET("/:symbol/:id", s.handleOrderGet)
	orders.DELETE("/:symbol/:id", s.handleOrderCancel)

	return r
}
