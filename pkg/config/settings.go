package config

import (
	"fmt"
	"sync"
)

// 报价参数默认值
const (
	DefaultSpreadPercent      = 3.0    // 距 mid-price 的固定价差（百分比）
	DefaultPositionSizeUSDT   = 100.0  // 默认仓位（USDT）
	DefaultMinLiquidityUSDT   = 300.0  // 我方订单前的最小流动性（USDT）
	DefaultMinSpreadCents     = 0.2    // mid 与订单价的最小价差（分）
	DefaultTargetLiquidity    = 1000.0 // 自动价差模式的目标流动性（USDT）
	DefaultMaxAutoSpreadCents = 6.0    // 自动价差距 mid 的最大偏移（分）
)

// TokenSettings 单个市场的报价设置。
//
// PositionSizeUSDT 与 PositionSizeShares 互斥：设置其中一个会清空另一个，
// 两个都为空时计算器无法产出订单（配置错误，不是瞬态失败）。
type TokenSettings struct {
	SpreadPercent       float64  `yaml:"spreadPercent" json:"spreadPercent"`
	PositionSizeUSDT    *float64 `yaml:"positionSizeUsdt" json:"positionSizeUsdt"`
	PositionSizeShares  *float64 `yaml:"positionSizeShares" json:"positionSizeShares"`
	MinLiquidityUSDT    float64  `yaml:"minLiquidityUsdt" json:"minLiquidityUsdt"`
	MinSpreadCents      float64  `yaml:"minSpreadCents" json:"minSpreadCents"`
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	AutoSpreadEnabled   bool     `yaml:"autoSpreadEnabled" json:"autoSpreadEnabled"`
	TargetLiquidityUSDT float64  `yaml:"targetLiquidityUsdt" json:"targetLiquidityUsdt"`
	MaxAutoSpreadCents  float64  `yaml:"maxAutoSpreadCents" json:"maxAutoSpreadCents"`
}

// DefaultTokenSettings 返回默认报价设置（仓位以 USDT 计）
func DefaultTokenSettings() TokenSettings {
	usdt := DefaultPositionSizeUSDT
	return TokenSettings{
		SpreadPercent:       DefaultSpreadPercent,
		PositionSizeUSDT:    &usdt,
		MinLiquidityUSDT:    DefaultMinLiquidityUSDT,
		MinSpreadCents:      DefaultMinSpreadCents,
		Enabled:             true,
		AutoSpreadEnabled:   false,
		TargetLiquidityUSDT: DefaultTargetLiquidity,
		MaxAutoSpreadCents:  DefaultMaxAutoSpreadCents,
	}
}

// ApplyDefaults 填充零值字段
func (s *TokenSettings) ApplyDefaults() {
	if s.SpreadPercent == 0 {
		s.SpreadPercent = DefaultSpreadPercent
	}
	if s.PositionSizeUSDT == nil && s.PositionSizeShares == nil {
		usdt := DefaultPositionSizeUSDT
		s.PositionSizeUSDT = &usdt
	}
	if s.MinLiquidityUSDT == 0 {
		s.MinLiquidityUSDT = DefaultMinLiquidityUSDT
	}
	if s.MinSpreadCents == 0 {
		s.MinSpreadCents = DefaultMinSpreadCents
	}
	if s.TargetLiquidityUSDT == 0 {
		s.TargetLiquidityUSDT = DefaultTargetLiquidity
	}
	if s.MaxAutoSpreadCents == 0 {
		s.MaxAutoSpreadCents = DefaultMaxAutoSpreadCents
	}
}

// Validate 校验设置（仓位字段必须恰好设置一个）
func (s *TokenSettings) Validate() error {
	if s.PositionSizeUSDT != nil && s.PositionSizeShares != nil {
		return fmt.Errorf("positionSizeUsdt 和 positionSizeShares 不能同时设置")
	}
	if s.PositionSizeUSDT == nil && s.PositionSizeShares == nil {
		return fmt.Errorf("positionSizeUsdt 和 positionSizeShares 必须设置一个")
	}
	if s.PositionSizeUSDT != nil && *s.PositionSizeUSDT <= 0 {
		return fmt.Errorf("positionSizeUsdt 必须大于 0")
	}
	if s.PositionSizeShares != nil && *s.PositionSizeShares <= 0 {
		return fmt.Errorf("positionSizeShares 必须大于 0")
	}
	if s.SpreadPercent < 0 || s.SpreadPercent >= 100 {
		return fmt.Errorf("spreadPercent 超出范围: %.2f", s.SpreadPercent)
	}
	if s.TargetLiquidityUSDT < 0 || s.MinLiquidityUSDT < 0 {
		return fmt.Errorf("流动性阈值不能为负")
	}
	return nil
}

// SetPositionSizeUSDT 设置 USDT 仓位并清空 shares 仓位
func (s *TokenSettings) SetPositionSizeUSDT(usdt float64) {
	s.PositionSizeUSDT = &usdt
	s.PositionSizeShares = nil
}

// SetPositionSizeShares 设置 shares 仓位并清空 USDT 仓位
func (s *TokenSettings) SetPositionSizeShares(shares float64) {
	s.PositionSizeShares = &shares
	s.PositionSizeUSDT = nil
}

// EffectiveMinLiquidity 生效的最小流动性阈值：
// 自动价差开启时是目标流动性，否则是 minLiquidityUsdt。
func (s *TokenSettings) EffectiveMinLiquidity() float64 {
	if s.AutoSpreadEnabled {
		return s.TargetLiquidityUSDT
	}
	return s.MinLiquidityUSDT
}

// SettingsUpdate 一次设置更新（nil 字段表示不修改）。
// PositionSizeUSDT 与 PositionSizeShares 同时给出时以 USDT 为准。
type SettingsUpdate struct {
	SpreadPercent       *float64
	PositionSizeUSDT    *float64
	PositionSizeShares  *float64
	MinLiquidityUSDT    *float64
	MinSpreadCents      *float64
	Enabled             *bool
	AutoSpreadEnabled   *bool
	TargetLiquidityUSDT *float64
	MaxAutoSpreadCents  *float64
}

// SettingsStore 按市场管理报价设置（内存态，线程安全）。
// 磁盘持久化由外部配置层负责，这里只保证读写一致性。
type SettingsStore struct {
	mu       sync.RWMutex
	defaults TokenSettings
	byMarket map[string]TokenSettings
}

// NewSettingsStore 创建设置仓库
func NewSettingsStore(defaults TokenSettings) *SettingsStore {
	defaults.ApplyDefaults()
	return &SettingsStore{
		defaults: defaults,
		byMarket: make(map[string]TokenSettings),
	}
}

// Get 返回市场的设置副本（没有自定义设置时返回默认值）
func (st *SettingsStore) Get(marketID string) TokenSettings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.byMarket[marketID]; ok {
		return s
	}
	return st.defaults
}

// Set 整体替换市场设置
func (st *SettingsStore) Set(marketID string, s TokenSettings) error {
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.byMarket[marketID] = s
	st.mu.Unlock()
	return nil
}

// Update 应用一次部分更新，维持仓位字段互斥
func (st *SettingsStore) Update(marketID string, u SettingsUpdate) TokenSettings {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.byMarket[marketID]
	if !ok {
		s = st.defaults
	}

	if u.SpreadPercent != nil {
		s.SpreadPercent = *u.SpreadPercent
	}
	if u.PositionSizeUSDT != nil {
		s.SetPositionSizeUSDT(*u.PositionSizeUSDT)
	} else if u.PositionSizeShares != nil {
		s.SetPositionSizeShares(*u.PositionSizeShares)
	}
	if u.MinLiquidityUSDT != nil {
		s.MinLiquidityUSDT = *u.MinLiquidityUSDT
	}
	if u.MinSpreadCents != nil {
		s.MinSpreadCents = *u.MinSpreadCents
	}
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.AutoSpreadEnabled != nil {
		s.AutoSpreadEnabled = *u.AutoSpreadEnabled
	}
	if u.TargetLiquidityUSDT != nil {
		s.TargetLiquidityUSDT = *u.TargetLiquidityUSDT
	}
	if u.MaxAutoSpreadCents != nil {
		s.MaxAutoSpreadCents = *u.MaxAutoSpreadCents
	}

	st.byMarket[marketID] = s
	return s
}

// Reset 恢复市场设置为默认值
func (st *SettingsStore) Reset(marketID string) {
	st.mu.Lock()
	delete(st.byMarket, marketID)
	st.mu.Unlock()
}
