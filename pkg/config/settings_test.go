package config

import "testing"

func TestTokenSettingsPositionExclusive(t *testing.T) {
	s := DefaultTokenSettings()
	if s.PositionSizeUSDT == nil || s.PositionSizeShares != nil {
		t.Fatalf("默认设置应使用 USDT 仓位")
	}

	s.SetPositionSizeShares(50)
	if s.PositionSizeUSDT != nil {
		t.Errorf("设置 shares 仓位后 USDT 仓位应被清空")
	}
	if s.PositionSizeShares == nil || *s.PositionSizeShares != 50 {
		t.Errorf("shares 仓位 = %v, 期望 50", s.PositionSizeShares)
	}

	s.SetPositionSizeUSDT(200)
	if s.PositionSizeShares != nil {
		t.Errorf("设置 USDT 仓位后 shares 仓位应被清空")
	}
}

func TestTokenSettingsValidate(t *testing.T) {
	s := DefaultTokenSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("默认设置校验失败: %v", err)
	}

	both := DefaultTokenSettings()
	shares := 10.0
	both.PositionSizeShares = &shares
	if err := both.Validate(); err == nil {
		t.Errorf("两个仓位字段同时设置应校验失败")
	}

	neither := DefaultTokenSettings()
	neither.PositionSizeUSDT = nil
	if err := neither.Validate(); err == nil {
		t.Errorf("两个仓位字段都为空应校验失败")
	}
}

func TestEffectiveMinLiquidity(t *testing.T) {
	s := DefaultTokenSettings()
	s.MinLiquidityUSDT = 300
	s.TargetLiquidityUSDT = 1000

	if got := s.EffectiveMinLiquidity(); got != 300 {
		t.Errorf("固定价差模式阈值 = %v, 期望 300", got)
	}
	s.AutoSpreadEnabled = true
	if got := s.EffectiveMinLiquidity(); got != 1000 {
		t.Errorf("自动价差模式阈值 = %v, 期望 1000", got)
	}
}

func TestSettingsStoreUpdate(t *testing.T) {
	store := NewSettingsStore(DefaultTokenSettings())

	spread := 5.0
	shares := 80.0
	got := store.Update("mkt-1", SettingsUpdate{
		SpreadPercent:      &spread,
		PositionSizeShares: &shares,
	})
	if got.SpreadPercent != 5.0 {
		t.Errorf("SpreadPercent = %v, 期望 5.0", got.SpreadPercent)
	}
	if got.PositionSizeUSDT != nil {
		t.Errorf("更新 shares 仓位后 USDT 仓位应被清空")
	}

	// 其他市场不受影响
	other := store.Get("mkt-2")
	if other.SpreadPercent != DefaultSpreadPercent {
		t.Errorf("未更新的市场不应改变: SpreadPercent = %v", other.SpreadPercent)
	}

	store.Reset("mkt-1")
	if store.Get("mkt-1").SpreadPercent != DefaultSpreadPercent {
		t.Errorf("Reset 后应恢复默认值")
	}
}
