package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/betbot/astergate/pkg/secretstore"
)

const (
	DefaultBaseURL     = "https://fapi.asterdex.com"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultLeverage    = 10
	DefaultMarginType  = "CROSSED"
	DefaultLogLevel    = "INFO"
	DefaultSecretDB    = "data/secrets.badger"
	EnvConfigPath      = "ASTERGATE_CONFIG"
	redacted           = "***REDACTED***"
	minLeverage        = 1
	maxLeverage        = 125
	defaultMaxRetries  = 3
	maxRetriesLimit    = 10
	defaultTimeoutSecs = 30
)

// secretKeys 可以从 Badger secret 库读取的配置项
var secretKeys = []string{"ASTERDEX_PRIVATE_KEY", "WEBHOOK_SECRET", "API_KEY"}

// SecretKeys 返回 secret 库中会被读取的配置项名称
func SecretKeys() []string { return append([]string(nil), secretKeys...) }

// Duration 支持 "30"（秒）与 "30s" 两种写法
type Duration time.Duration

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(time.Duration(n * float64(time.Second))), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

// Decode envconfig.Decoder
func (d *Duration) Decode(value string) error {
	v, err := parseDuration(value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.Decode(node.Value)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// AsterDEXConfig 交易所与签名账户
type AsterDEXConfig struct {
	BaseURL       string `yaml:"base_url" envconfig:"ASTERDEX_BASE_URL"`
	UserAddress   string `yaml:"user_address" envconfig:"ASTERDEX_USER_ADDRESS"`
	SignerAddress string `yaml:"signer_address" envconfig:"ASTERDEX_SIGNER_ADDRESS"`
	PrivateKey    string `yaml:"private_key" envconfig:"ASTERDEX_PRIVATE_KEY"`
}

// ServerConfig HTTP 服务与入站鉴权
type ServerConfig struct {
	Host          string `yaml:"host" envconfig:"SERVER_HOST"`
	Port          int    `yaml:"port" envconfig:"SERVER_PORT"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	APIKey        string `yaml:"api_key" envconfig:"API_KEY"`
}

// TradingConfig 交易默认值
type TradingConfig struct {
	DefaultLeverage   int      `yaml:"default_leverage" envconfig:"DEFAULT_LEVERAGE"`
	DefaultMarginType string   `yaml:"default_margin_type" envconfig:"DEFAULT_MARGIN_TYPE"`
	BalanceCacheTTL   Duration `yaml:"balance_cache_ttl" envconfig:"BALANCE_CACHE_TTL"`
}

// ClientConfig 出站请求
type ClientConfig struct {
	RequestTimeout      Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxRetries          int      `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	RateLimitRetryDelay Duration `yaml:"rate_limit_retry_delay" envconfig:"RATE_LIMIT_RETRY_DELAY"`
	OutboundRateLimit   float64  `yaml:"outbound_rate_limit" envconfig:"OUTBOUND_RATE_LIMIT"` // 每秒请求数，0 表示不限
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	File   string `yaml:"file" envconfig:"LOG_FILE"`
}

// MetricsConfig expvar/pprof 调试服务，Listen 为空时不启动
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// SecretsConfig Badger secret 库
type SecretsConfig struct {
	DB  string `yaml:"db" envconfig:"SECRET_DB"`
	Key string `yaml:"-" envconfig:"SECRET_KEY"`
}

// Config 应用配置
type Config struct {
	AsterDEX AsterDEXConfig `yaml:"asterdex"`
	Server   ServerConfig   `yaml:"server"`
	Trading  TradingConfig  `yaml:"trading"`
	Client   ClientConfig   `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Secrets  SecretsConfig  `yaml:"secrets"`

	// SecretsLoaded 从 secret 库覆盖的配置项名称
	SecretsLoaded []string `yaml:"-" ignored:"true"`
}

// Defaults 内置默认值
func Defaults() *Config {
	return &Config{
		AsterDEX: AsterDEXConfig{BaseURL: DefaultBaseURL},
		Server:   ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Trading: TradingConfig{
			DefaultLeverage:   DefaultLeverage,
			DefaultMarginType: DefaultMarginType,
			BalanceCacheTTL:   Duration(5 * time.Second),
		},
		Client: ClientConfig{
			RequestTimeout:      Duration(defaultTimeoutSecs * time.Second),
			MaxRetries:          defaultMaxRetries,
			RateLimitRetryDelay: Duration(2 * time.Second),
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Options 加载选项
type Options struct {
	File       string   // YAML 配置文件，可为空
	EnvFiles   []string // .env 文件，默认 [".env"]；不存在时忽略
	SkipDotEnv bool
	SkipSecret bool
}

// Load 按 默认值 -> YAML -> .env/环境变量 -> secret 库 的顺序加载并校验
func Load(opts Options) (*Config, error) {
	cfg := Defaults()

	if opts.File == "" {
		opts.File = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if opts.File != "" {
		if err := cfg.mergeFile(opts.File); err != nil {
			return nil, err
		}
	}

	if !opts.SkipDotEnv {
		if err := loadDotEnv(opts.EnvFiles); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if !opts.SkipSecret {
		if err := cfg.mergeSecrets(); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv 不覆盖已存在的环境变量
func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// mergeSecrets 配置了 SECRET_KEY 时从 Badger 读取敏感项并覆盖
func (c *Config) mergeSecrets() error {
	key, err := secretstore.ParseKey(c.Secrets.Key)
	if err != nil {
		return fmt.Errorf("parse SECRET_KEY: %w", err)
	}
	if key == nil {
		return nil
	}
	path := c.Secrets.DB
	if path == "" {
		path = DefaultSecretDB
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: path, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return err
	}
	defer ss.Close()
	return c.applySecrets(ss)
}

func (c *Config) applySecrets(ss *secretstore.Store) error {
	vals, err := ss.GetPrefixed(secretstore.DefaultPrefix, secretKeys...)
	if err != nil {
		return err
	}
	for _, k := range secretKeys {
		v, ok := vals[k]
		if !ok {
			continue
		}
		switch k {
		case "ASTERDEX_PRIVATE_KEY":
			c.AsterDEX.PrivateKey = v
		case "WEBHOOK_SECRET":
			c.Server.WebhookSecret = v
		case "API_KEY":
			c.Server.APIKey = v
		}
		c.SecretsLoaded = append(c.SecretsLoaded, k)
	}
	return nil
}

func (c *Config) normalize() {
	c.AsterDEX.BaseURL = strings.TrimRight(strings.TrimSpace(c.AsterDEX.BaseURL), "/")
	c.AsterDEX.UserAddress = strings.ToLower(strings.TrimSpace(c.AsterDEX.UserAddress))
	c.AsterDEX.SignerAddress = strings.ToLower(strings.TrimSpace(c.AsterDEX.SignerAddress))
	c.AsterDEX.PrivateKey = strings.TrimSpace(c.AsterDEX.PrivateKey)
	c.Trading.DefaultMarginType = strings.ToUpper(strings.TrimSpace(c.Trading.DefaultMarginType))
	c.Log.Level = strings.ToUpper(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
}

var (
	addressRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	privateKeyRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	logLevels    = map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "WARN": true, "ERROR": true, "CRITICAL": true}
)

// Validate 凭证为空时只影响 Ready，格式错误则直接报错
func (c *Config) Validate() error {
	if c.AsterDEX.BaseURL == "" {
		return fmt.Errorf("ASTERDEX_BASE_URL must not be empty")
	}
	if v := c.AsterDEX.UserAddress; v != "" && !addressRe.MatchString(v) {
		return fmt.Errorf("ASTERDEX_USER_ADDRESS: invalid Ethereum address format, must be 0x followed by 40 hex characters")
	}
	if v := c.AsterDEX.SignerAddress; v != "" && !addressRe.MatchString(v) {
		return fmt.Errorf("ASTERDEX_SIGNER_ADDRESS: invalid Ethereum address format, must be 0x followed by 40 hex characters")
	}
	if v := c.AsterDEX.PrivateKey; v != "" && !privateKeyRe.MatchString(v) {
		return fmt.Errorf("ASTERDEX_PRIVATE_KEY: invalid private key format, must be 0x followed by 64 hex characters")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Trading.DefaultLeverage < minLeverage || c.Trading.DefaultLeverage > maxLeverage {
		return fmt.Errorf("DEFAULT_LEVERAGE must be between %d and %d, got %d", minLeverage, maxLeverage, c.Trading.DefaultLeverage)
	}
	if m := c.Trading.DefaultMarginType; m != "ISOLATED" && m != "CROSSED" {
		return fmt.Errorf("DEFAULT_MARGIN_TYPE must be either ISOLATED or CROSSED, got %q", m)
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.Client.MaxRetries < 0 || c.Client.MaxRetries > maxRetriesLimit {
		return fmt.Errorf("MAX_RETRIES must be between 0 and %d, got %d", maxRetriesLimit, c.Client.MaxRetries)
	}
	if c.Client.RateLimitRetryDelay <= 0 {
		return fmt.Errorf("RATE_LIMIT_RETRY_DELAY must be positive")
	}
	if c.Client.OutboundRateLimit < 0 {
		return fmt.Errorf("OUTBOUND_RATE_LIMIT must not be negative")
	}
	if c.Trading.BalanceCacheTTL < 0 {
		return fmt.Errorf("BALANCE_CACHE_TTL must not be negative")
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.Log.Level)
	}
	if f := c.Log.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", f)
	}
	if l := c.Metrics.Listen; l != "" {
		if _, _, err := net.SplitHostPort(l); err != nil {
			return fmt.Errorf("METRICS_LISTEN must be host:port, got %q", l)
		}
	}
	return nil
}

// MissingCredential 返回第一个缺失的凭证说明，齐全时返回空串
func (c *Config) MissingCredential() string {
	switch {
	case c.AsterDEX.UserAddress == "":
		return "Configuration error: User address not configured"
	case c.AsterDEX.SignerAddress == "":
		return "Configuration error: Signer address not configured"
	case c.AsterDEX.PrivateKey == "":
		return "Configuration error: Private key not configured"
	}
	return ""
}

// Ready 交易凭证是否齐全
func (c *Config) Ready() bool { return c.MissingCredential() == "" }

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Safe 脱敏后的配置摘要，用于 /health 与启动日志
func (c *Config) Safe() map[string]any {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return redacted
	}
	return map[string]any{
		"base_url":                  c.AsterDEX.BaseURL,
		"user_address":              c.AsterDEX.UserAddress,
		"signer_address":            c.AsterDEX.SignerAddress,
		"private_key":               mask(c.AsterDEX.PrivateKey),
		"webhook_secret_configured": c.Server.WebhookSecret != "",
		"api_key_configured":        c.Server.APIKey != "",
		"default_leverage":          c.Trading.DefaultLeverage,
		"default_margin_type":       c.Trading.DefaultMarginType,
		"request_timeout":           c.Client.RequestTimeout.String(),
		"max_retries":               c.Client.MaxRetries,
		"rate_limit_retry_delay":    c.Client.RateLimitRetryDelay.String(),
		"log_level":                 c.Log.Level,
	}
}
