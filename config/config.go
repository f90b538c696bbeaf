package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// PaymentConfig VIP 支付与对账配置
type PaymentConfig struct {
	BankFeed            BankFeedConfig `mapstructure:"bank_feed"`
	QR                  QRConfig       `mapstructure:"qr"`
	LookbackMinutes     int            `mapstructure:"lookback_minutes"`      // 交易匹配回溯窗口
	PollIntervalSeconds int            `mapstructure:"poll_interval_seconds"` // 后台对账间隔
	PollWorkers         int            `mapstructure:"poll_workers"`
	LockTTLSeconds      int            `mapstructure:"lock_ttl_seconds"`
	Timezone            string         `mapstructure:"timezone"`
	ReconcileDisabled   bool           `mapstructure:"reconcile_disabled"` // 维护开关
	PendingKey          string         `mapstructure:"pending_key"`        // 待对账意向 Redis key
	LockPrefix          string         `mapstructure:"lock_prefix"`
	Plans               []PlanConfig   `mapstructure:"plans"`
}

// BankFeedConfig 银行流水接口配置
type BankFeedConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	AccountNumber  string `mapstructure:"account_number"`
	Limit          int    `mapstructure:"limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QRConfig 收款二维码接口配置
type QRConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ClientID       string `mapstructure:"client_id"`
	APIKey         string `mapstructure:"api_key"`
	AccountNo      string `mapstructure:"account_no"`
	AccountName    string `mapstructure:"account_name"`
	AcqID          string `mapstructure:"acq_id"` // 银行 BIN
	Template       string `mapstructure:"template"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PlanConfig VIP 套餐（月数 -> 价格）
type PlanConfig struct {
	Months int    `mapstructure:"months"`
	Price  string `mapstructure:"price"`
}

type RateLimitConfig struct {
	ReconcilePerMinute int `mapstructure:"reconcile_per_minute"`
	Burst              int `mapstructure:"burst"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 只为调优参数设置默认值，第三方凭证必须显式配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("payment.lookback_minutes", 30)
	v.SetDefault("payment.poll_interval_seconds", 15)
	v.SetDefault("payment.poll_workers", 4)
	v.SetDefault("payment.lock_ttl_seconds", 30)
	v.SetDefault("payment.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("payment.pending_key", "vip:pending")
	v.SetDefault("payment.lock_prefix", "lock:vip:")
	v.SetDefault("payment.bank_feed.limit", 50)
	v.SetDefault("payment.bank_feed.timeout_seconds", 10)
	v.SetDefault("payment.qr.template", "compact")
	v.SetDefault("payment.qr.timeout_seconds", 10)
	v.SetDefault("rate_limit.reconcile_per_minute", 12)
	v.SetDefault("rate_limit.burst", 3)
}

// Lookback 交易匹配回溯窗口
func (c PaymentConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}

// PollInterval 后台对账间隔
func (c PaymentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LockTTL 用户级对账锁的过期时间
func (c PaymentConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Location 解析业务时区，“今天”按该时区计算
func (c PaymentConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// PlanPrices 将套餐配置解析为 月数 -> 价格
func (c PaymentConfig) PlanPrices() (map[int]decimal.Decimal, error) {
	prices := make(map[int]decimal.Decimal, len(c.Plans))
	for _, p := range c.Plans {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, err
		}
		prices[p.Months] = price
	}
	return prices, nil
}
