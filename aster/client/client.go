package client

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/astergate/aster/signing"
)

const (
	DefaultBaseURL        = "https://fapi.asterdex.com"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRecvWindow     = 5000

	// MaxBackoff 单次重试等待上限
	MaxBackoff = 60 * time.Second

	defaultMaxConnsPerHost = 20
	defaultMaxIdleConns    = 10
)

// Authorizer 给参数集追加 nonce/user/signer/signature
type Authorizer interface {
	Authorize(params *signing.Params) (*signing.Params, error)
}

// Limiter 出站请求节流
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config 客户端配置
type Config struct {
	BaseURL         string
	Timeout         time.Duration // 单次请求超时
	MaxRetries      int           // 瞬时错误的额外重试次数
	RetryBaseDelay  time.Duration // 退避基数：base * 2^attempt
	RecvWindow      int64         // 毫秒
	MaxConnsPerHost int
	MaxIdleConns    int
	UserAgent       string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.RecvWindow <= 0 {
		c.RecvWindow = DefaultRecvWindow
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.UserAgent == "" {
		c.UserAgent = "astergate/1.0"
	}
}

// Sleeper 退避等待，ctx 结束时提前返回
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client AsterDEX REST 客户端，并发安全，进程内共享一个实例
type Client struct {
	cfg       Config
	http      *resty.Client
	transport *http.Transport
	auth      Authorizer
	limiter   Limiter
	sleep     Sleeper
	now       func() time.Time
}

// Option 客户端选项
type Option func(*Client)

// WithSleeper 替换退避等待函数（测试用）
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithClock 替换时钟（timestamp 参数）
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLimiter 启用出站节流
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New 创建客户端；auth 为 nil 时只能调用公开接口
func New(cfg Config, auth Authorizer, opts ...Option) *Client {
	cfg.applyDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// 重试由 Request 自己做，resty 内置重试保持关闭
	rc := resty.New().
		SetTransport(transport).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)

	c := &Client{
		cfg:       cfg,
		http:      rc,
		transport: transport,
		auth:      auth,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close 释放空闲连接
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// BaseURL 当前 base url
func (c *Client) BaseURL() string { return c.cfg.BaseURL }
