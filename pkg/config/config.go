package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialsConfig API 凭证。私钥和 API key 只从环境变量读取，不落配置文件。
type CredentialsConfig struct {
	APIKey     string // PREDICT_API_KEY
	JWT        string // PREDICT_JWT，下单鉴权用，过期后通过私钥重签
	PrivateKey string // WALLET_PRIVATE_KEY，EIP-712 签名
}

// MarketConfig 单个市场的做市配置
type MarketConfig struct {
	ID       string         `yaml:"id"`
	Settings *TokenSettings `yaml:"settings"` // 为空时使用全局默认
}

// SigningConfig EIP-712 签名所需的链上参数。
// 交易所合约地址没有安全的内置默认值，必须显式配置。
type SigningConfig struct {
	ChainID              int64  `yaml:"chain_id"`
	Exchange             string `yaml:"exchange"`
	NegRiskExchange      string `yaml:"neg_risk_exchange"`
	YieldBearingExchange string `yaml:"yield_bearing_exchange"`
	PredictAccount       string `yaml:"predict_account"` // 为空时钱包地址直接做 maker
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`       // debug/info/warn/error
	File       string `yaml:"file"`        // 日志文件路径，空则只输出到控制台
	MaxSizeMB  int    `yaml:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config 应用配置
type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	WSURL      string `yaml:"ws_url"`

	Markets  []MarketConfig `yaml:"markets"`
	Defaults TokenSettings  `yaml:"defaults"`

	RepriceSettleDelayMS int `yaml:"reprice_settle_delay_ms"` // 撤单后等待交易所结算的间隔（毫秒）
	LockTimeoutMS        int `yaml:"lock_timeout_ms"`         // 状态查询抢锁超时（毫秒）
	RequestsPerSecond    int `yaml:"requests_per_second"`     // REST 限速

	Signing SigningConfig `yaml:"signing"`
	Log     LogConfig     `yaml:"log"`

	Credentials CredentialsConfig `yaml:"-"`
}

const (
	DefaultAPIBaseURL = "https://api.predict.fun"
	DefaultWSURL      = "wss://ws.predict.fun/ws"
)

// Load 从 YAML 文件加载配置，凭证从环境变量读取。
// path 为空时返回纯默认配置（仍需要环境变量提供凭证）。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()
	cfg.loadCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults 填充零值字段
func (c *Config) ApplyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = getEnv("PREDICT_API_BASE_URL", DefaultAPIBaseURL)
	}
	if c.WSURL == "" {
		c.WSURL = getEnv("PREDICT_WS_URL", DefaultWSURL)
	}
	if c.RepriceSettleDelayMS == 0 {
		c.RepriceSettleDelayMS = 1000
	}
	if c.LockTimeoutMS == 0 {
		c.LockTimeoutMS = 2000
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.Signing.ChainID == 0 {
		c.Signing.ChainID = int64(parseIntEnv("PREDICT_CHAIN_ID", 56)) // BNB 主网
	}
	if c.Signing.Exchange == "" {
		c.Signing.Exchange = os.Getenv("PREDICT_EXCHANGE_ADDRESS")
	}
	if c.Signing.NegRiskExchange == "" {
		c.Signing.NegRiskExchange = os.Getenv("PREDICT_NEG_RISK_EXCHANGE_ADDRESS")
	}
	if c.Signing.YieldBearingExchange == "" {
		c.Signing.YieldBearingExchange = os.Getenv("PREDICT_YIELD_BEARING_EXCHANGE_ADDRESS")
	}
	if c.Signing.PredictAccount == "" {
		c.Signing.PredictAccount = os.Getenv("PREDICT_ACCOUNT_ADDRESS")
	}
	if c.Log.Level == "" {
		c.Log.Level = getEnv("LOG_LEVEL", "info")
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 14
	}
	c.Defaults.ApplyDefaults()
	for i := range c.Markets {
		if c.Markets[i].Settings != nil {
			c.Markets[i].Settings.ApplyDefaults()
		}
	}
}

func (c *Config) loadCredentials() {
	c.Credentials = CredentialsConfig{
		APIKey:     os.Getenv("PREDICT_API_KEY"),
		JWT:        os.Getenv("PREDICT_JWT"),
		PrivateKey: strings.TrimPrefix(os.Getenv("WALLET_PRIVATE_KEY"), "0x"),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("至少需要配置一个市场")
	}
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if m.ID == "" {
			return fmt.Errorf("市场 id 不能为空")
		}
		if seen[m.ID] {
			return fmt.Errorf("市场 %s 重复配置", m.ID)
		}
		seen[m.ID] = true
		if m.Settings != nil {
			if err := m.Settings.Validate(); err != nil {
				return fmt.Errorf("市场 %s 配置无效: %w", m.ID, err)
			}
		}
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("默认报价配置无效: %w", err)
	}
	if c.Signing.Exchange == "" {
		return fmt.Errorf("缺少交易所合约地址（signing.exchange 或 PREDICT_EXCHANGE_ADDRESS）")
	}
	return nil
}

// SettingsFor 构建设置仓库，套用各市场的自定义设置
func (c *Config) SettingsFor() *SettingsStore {
	store := NewSettingsStore(c.Defaults)
	for _, m := range c.Markets {
		if m.Settings != nil {
			_ = store.Set(m.ID, *m.Settings)
		}
	}
	return store
}

// RepriceSettleDelay 撤单结算等待时长
func (c *Config) RepriceSettleDelay() time.Duration {
	return time.Duration(c.RepriceSettleDelayMS) * time.Millisecond
}

// LockTimeout 状态查询抢锁超时
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
