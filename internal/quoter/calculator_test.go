package quoter

import (
	"math"
	"testing"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
)

func testBook(bids, asks []domain.PriceLevel) *domain.OrderBookSnapshot {
	return &domain.OrderBookSnapshot{MarketID: "mkt-1", Bids: bids, Asks: asks}
}

func usdtSettings(usdt float64) config.TokenSettings {
	s := config.DefaultTokenSettings()
	s.SetPositionSizeUSDT(usdt)
	return s
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateFixedSpread(t *testing.T) {
	book := testBook(
		[]domain.PriceLevel{{Price: 0.50, Size: 100}},
		[]domain.PriceLevel{{Price: 0.52, Size: 100}},
	)
	settings := usdtSettings(100)
	settings.SpreadPercent = 3.0

	q, err := Calculate(book, settings, 3, nil)
	if err != nil {
		t.Fatalf("Calculate 失败: %v", err)
	}

	if !almostEqual(q.MidYes, 0.51) {
		t.Errorf("MidYes = %v, 期望 0.51", q.MidYes)
	}
	// 0.51 * 0.97 = 0.4947 -> 按 3 位精度取整到 0.495
	if !almostEqual(q.Yes.Price, 0.495) {
		t.Errorf("Yes.Price = %v, 期望 0.495", q.Yes.Price)
	}
	if q.Yes.Price > q.MidYes {
		t.Errorf("买价不应高于 mid: price=%v mid=%v", q.Yes.Price, q.MidYes)
	}
	// best bid 0.50 高于 0.495，前方流动性 = 0.50*100 = 50
	if !almostEqual(q.Yes.LiquidityAhead, 50) {
		t.Errorf("Yes.LiquidityAhead = %v, 期望 50", q.Yes.LiquidityAhead)
	}
	if q.Yes.ValueUSD < MinOrderValueUSD {
		t.Errorf("名义金额低于最小下单额: %v", q.Yes.ValueUSD)
	}
}

func TestCalculateLiquidityThreshold(t *testing.T) {
	book := testBook(
		[]domain.PriceLevel{{Price: 0.50, Size: 100}},
		[]domain.PriceLevel{{Price: 0.52, Size: 100}},
	)
	settings := usdtSettings(100)
	settings.SpreadPercent = 3.0
	settings.MinLiquidityUSDT = 300

	q, err := Calculate(book, settings, 3, nil)
	if err != nil {
		t.Fatalf("Calculate 失败: %v", err)
	}
	// 前方流动性 50 < 阈值 300
	if q.Yes.CanPlace {
		t.Errorf("流动性不足时不应允许挂单: liquidity=%v min=%v", q.Yes.LiquidityAhead, q.MinLiquidity)
	}
	if q.Yes.CanPlaceLiquidity {
		t.Errorf("CanPlaceLiquidity 应为 false")
	}
	// 价差检查只在价格触底时生效
	if !q.Yes.CanPlaceSpread {
		t.Errorf("价格未触底时价差检查应视为通过")
	}
}

func TestCalculateAutoSpreadInsufficientDepth(t *testing.T) {
	// 整本盘口只有 50 USDT，远低于目标 1000
	book := testBook(
		[]domain.PriceLevel{{Price: 0.50, Size: 100}},
		[]domain.PriceLevel{{Price: 0.52, Size: 100}},
	)
	settings := usdtSettings(100)
	settings.AutoSpreadEnabled = true
	settings.TargetLiquidityUSDT = 1000
	settings.MaxAutoSpreadCents = 6

	q, err := Calculate(book, settings, 3, nil)
	if err != nil {
		t.Fatalf("Calculate 失败: %v", err)
	}
	// 深度耗尽：最差 bid 0.50 下移一个 tick = 0.499（仍在 6 分上限内）
	if !almostEqual(q.Yes.Price, 0.499) {
		t.Errorf("Yes.Price = %v, 期望 0.499", q.Yes.Price)
	}
	if q.Yes.CanPlace {
		t.Errorf("目标流动性不可达时不应允许挂单")
	}
	// 自动价差模式下阈值是目标流动性
	if q.MinLiquidity != 1000 {
		t.Errorf("MinLiquidity = %v, 期望 1000", q.MinLiquidity)
	}
}

func TestCalculateAutoSpreadCap(t *testing.T) {
	// 深度很厚，回溯价会超出 mid - maxSpread，应被夹回
	book := testBook(
		[]domain.PriceLevel{{Price: 0.50, Size: 10}, {Price: 0.30, Size: 10000}},
		[]domain.PriceLevel{{Price: 0.52, Size: 10}, {Price: 0.70, Size: 10000}},
	)
	settings := usdtSettings(100)
	settings.AutoSpreadEnabled = true
	settings.TargetLiquidityUSDT = 1000
	settings.MaxAutoSpreadCents = 6

	q, err := Calculate(book, settings, 3, nil)
	if err != nil {
		t.Fatalf("Calculate 失败: %v", err)
	}
	floor := q.MidYes - 0.06
	if q.Yes.Price < floor-1e-9 {
		t.Errorf("Yes.Price = %v 超出价差上限 %v", q.Yes.Price, floor)
	}
}

func TestCalculateEmptyBook(t *testing.T) {
	book := testBook([]domain.PriceLevel{{Price: 0.50, Size: 100}}, nil)
	if _, err := Calculate(book, usdtSettings(100), 3, nil); err != ErrEmptyBook {
		t.Errorf("单边为空应返回 ErrEmptyBook, got %v", err)
	}
}

func TestCalculateNoPositionSize(t *testing.T) {
	book := testBook(
		[]domain.PriceLevel{{Price: 0.50, Size: 100}},
		[]domain.PriceLevel{{Price: 0.52, Size: 100}},
	)
	s := config.DefaultTokenSettings()
	s.PositionSizeUSDT = nil
	s.PositionSizeShares = nil
	if _, err := Calculate(book, s, 3, nil); err != ErrNoPositionSize {
		t.Errorf("仓位缺失应返回 ErrNoPositionSize, got %v", err)
	}
}

func TestRoundSharesToTenthsRepair(t *testing.T) {
	// 3.333 -> 3.3, 3.3*0.3=0.99 < 1，修复到 3.4
	got := RoundSharesToTenths(3.333, 0.3)
	if !almostEqual(got, 3.4) {
		t.Errorf("RoundSharesToTenths(3.333, 0.3) = %v, 期望 3.4", got)
	}
	// 已满足最小金额时只取整
	got = RoundSharesToTenths(202.0202, 0.495)
	if !almostEqual(got, 202.0) {
		t.Errorf("RoundSharesToTenths(202.0202, 0.495) = %v, 期望 202.0", got)
	}
}

func TestAdjustToMinOrderValue(t *testing.T) {
	// 0.5 * 0.4 = 0.2 < 1 -> 1/0.4 = 2.5
	if got := AdjustToMinOrderValue(0.5, 0.4); !almostEqual(got, 2.5) {
		t.Errorf("AdjustToMinOrderValue(0.5, 0.4) = %v, 期望 2.5", got)
	}
	if got := AdjustToMinOrderValue(10, 0.4); !almostEqual(got, 10) {
		t.Errorf("已达标时不应调整: got %v", got)
	}
}
