// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// 交易所接入配置
	Venue VenueConfig `mapstructure:"venue"`
	// 再平衡交易配置
	Trading TradingConfig `mapstructure:"trading"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 过期订单清理配置
	Reaper ReaperConfig `mapstructure:"reaper"`
	// HTTP 运维端口配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// VenueConfig 交易所接入配置
type VenueConfig struct {
	// REST 基础地址
	BaseURL string `mapstructure:"base_url"`
	// API Key
	Key string `mapstructure:"key"`
	// API Secret
	Secret string `mapstructure:"secret"`
	// API Passphrase
	Passphrase string `mapstructure:"passphrase"`
	// API Key 版本
	KeyVersion string `mapstructure:"key_version"`
	// 请求超时（秒）
	Timeout int `mapstructure:"timeout"`
}

// TradingConfig 再平衡交易配置
type TradingConfig struct {
	// 计价稳定币，如 USDT
	Quote string `mapstructure:"quote"`
	// 每个币种维持的稳定币价值（精确小数字符串）
	BaseKeep string `mapstructure:"base_keep"`
	// 允许交易的币种列表
	Symbols []string `mapstructure:"symbols"`
	// 忽略的币种列表
	IgnoreSymbols []string `mapstructure:"ignore_symbols"`
}

// BaseKeepDecimal 返回 base_keep 的精确小数表示
func (c TradingConfig) BaseKeepDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.BaseKeep)
	return d
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// Consumer Group ID
	GroupID string `mapstructure:"group_id"`
	// 余额事件主题
	BalanceTopic string `mapstructure:"balance_topic"`
	// K 线事件主题
	CandleTopic string `mapstructure:"candle_topic"`
	// 死信主题后缀
	DLQSuffix string `mapstructure:"dlq_suffix"`
	// 消费者会话超时（秒）
	SessionTimeout int `mapstructure:"session_timeout"`
}

// ReaperConfig 过期订单清理配置
type ReaperConfig struct {
	// 扫描间隔（秒）
	Interval int `mapstructure:"interval"`
	// 订单过期阈值（秒）
	StaleThreshold int `mapstructure:"stale_threshold"`
}

// IntervalDuration 返回扫描间隔
func (c ReaperConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// StaleThresholdDuration 返回订单过期阈值
func (c ReaperConfig) StaleThresholdDuration() time.Duration {
	return time.Duration(c.StaleThreshold) * time.Second
}

// HTTPConfig HTTP 运维端口配置
type HTTPConfig struct {
	// 监听端口
	Port int `mapstructure:"port"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 设置环境变量前缀，如 APP_VENUE_SECRET 覆盖 venue.secret
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性，凭证缺失视为启动期致命错误
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url is required")
	}
	if c.Venue.Key == "" || c.Venue.Secret == "" || c.Venue.Passphrase == "" {
		return fmt.Errorf("venue credentials (key/secret/passphrase) are required")
	}
	keep, err := decimal.NewFromString(c.Trading.BaseKeep)
	if err != nil {
		return fmt.Errorf("trading.base_keep is not a valid decimal: %q", c.Trading.BaseKeep)
	}
	if !keep.IsPositive() {
		return fmt.Errorf("trading.base_keep must be positive, got %s", keep)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id is required")
	}
	if c.Reaper.Interval <= 0 {
		return fmt.Errorf("reaper.interval must be positive, got %d", c.Reaper.Interval)
	}
	if c.Reaper.StaleThreshold <= 0 {
		return fmt.Errorf("reaper.stale_threshold must be positive, got %d", c.Reaper.StaleThreshold)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("venue.key_version", "2")
	v.SetDefault("venue.timeout", 10)

	v.SetDefault("trading.quote", "USDT")

	v.SetDefault("kafka.balance_topic", "balance")
	v.SetDefault("kafka.candle_topic", "candle")
	v.SetDefault("kafka.dlq_suffix", ".dlq")
	v.SetDefault("kafka.session_timeout", 10)

	v.SetDefault("reaper.interval", 60)
	// 略低于一小时，容忍本地与交易所之间的时钟偏差
	v.SetDefault("reaper.stale_threshold", 3540)

	v.SetDefault("http.port", 8080)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
