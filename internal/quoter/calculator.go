package quoter

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
)

// 下单约束常量
const (
	MinOrderValueUSD = 1.0   // 交易所最小下单金额
	MinOrderPrice    = 0.001 // 价格下限（0.1 分）
	MaxOrderPrice    = 0.999 // 价格上限
)

var (
	// ErrEmptyBook 盘口缺少 bid 或 ask，本轮不产出报价
	ErrEmptyBook = errors.New("盘口不完整，无法计算报价")
	// ErrNoPositionSize 仓位字段未设置（配置错误，不重试）
	ErrNoPositionSize = errors.New("未设置仓位大小")
)

// QuoteSide 单个方向的报价结果
type QuoteSide struct {
	Price             float64 `json:"price"`
	Shares            float64 `json:"shares"`
	ValueUSD          float64 `json:"valueUsd"`
	LiquidityAhead    float64 `json:"liquidityAhead"`
	Spread            float64 `json:"spread"` // |mid - price|，美元
	CanPlaceLiquidity bool    `json:"canPlaceLiquidity"`
	CanPlaceSpread    bool    `json:"canPlaceSpread"`
	CanPlace          bool    `json:"canPlace"`
}

// QuoteResult 一次报价计算的完整输出。
// 每次盘口更新重新计算，纯派生数据，不持久化。
type QuoteResult struct {
	MarketID      string    `json:"marketId"`
	MidYes        float64   `json:"midYes"`
	MidNo         float64   `json:"midNo"`
	BestBid       float64   `json:"bestBid"`
	BestAsk       float64   `json:"bestAsk"`
	Yes           QuoteSide `json:"yes"`
	No            QuoteSide `json:"no"`
	TotalValueUSD float64   `json:"totalValueUsd"` // Yes/No 名义金额的较大者（两单只会成交一边）
	MinLiquidity  float64   `json:"minLiquidity"`  // 本次计算使用的流动性阈值
	MinSpread     float64   `json:"minSpread"`     // 本次计算使用的最小价差（分）
	ComputedAt    time.Time `json:"computedAt"`
}

// Side 按方向取报价结果
func (q *QuoteResult) Side(o domain.Outcome) *QuoteSide {
	if o == domain.OutcomeYes {
		return &q.Yes
	}
	return &q.No
}

// Calculate 根据盘口和设置计算双边限价单。
//
// active 是当前已挂的订单对（可为 nil），用于在流动性统计中扣除我方自身挂单。
// 盘口单边为空返回 ErrEmptyBook；仓位字段缺失返回 ErrNoPositionSize。
func Calculate(book *domain.OrderBookSnapshot, settings config.TokenSettings, precision int, active *domain.ActiveOrderPair) (*QuoteResult, error) {
	if book == nil || !book.HasBothSides() {
		return nil, ErrEmptyBook
	}

	bestBid, _ := book.BestBid()
	bestAsk, _ := book.BestAsk()
	midYes := (bestBid + bestAsk) / 2
	midNo := domain.NoPrice(midYes)

	// 1. 候选价
	var buyYes, buyNo float64
	if settings.AutoSpreadEnabled {
		maxSpread := settings.MaxAutoSpreadCents / 100.0
		buyYes, _ = FindPriceByTargetLiquidity(book, domain.OutcomeYes, settings.TargetLiquidityUSDT, precision)
		buyNo, _ = FindPriceByTargetLiquidity(book, domain.OutcomeNo, settings.TargetLiquidityUSDT, precision)
		// 距 mid 永远不超过配置的价差上限，哪怕深度不够
		buyYes = math.Max(buyYes, midYes-maxSpread)
		buyNo = math.Max(buyNo, midNo-maxSpread)
	} else {
		frac := settings.SpreadPercent / 100.0
		buyYes = midYes * (1 - frac)
		buyNo = midNo * (1 - frac)
	}

	// 2. 按市场精度取整并夹到合法区间
	buyYes = ClampPrice(RoundPrice(buyYes, precision))
	buyNo = ClampPrice(RoundPrice(buyNo, precision))

	// 3. 仓位
	sharesYes, valueYes, err := SizeShares(settings, buyYes)
	if err != nil {
		return nil, err
	}
	sharesNo, valueNo, err := SizeShares(settings, buyNo)
	if err != nil {
		return nil, err
	}

	// 4. 我方挂单前方流动性
	var ownYes, ownNo *domain.ActiveOrder
	if active != nil {
		ownYes, ownNo = active.Yes, active.No
	}
	liqYes := LiquidityAhead(book, domain.OutcomeYes, buyYes, ownYes)
	liqNo := LiquidityAhead(book, domain.OutcomeNo, buyNo, ownNo)

	// 5. 准入判定
	minLiquidity := settings.EffectiveMinLiquidity()
	minSpreadDollars := settings.MinSpreadCents / 100.0

	yes := admit(buyYes, sharesYes, valueYes, liqYes, midYes, minLiquidity, minSpreadDollars)
	no := admit(buyNo, sharesNo, valueNo, liqNo, midNo, minLiquidity, minSpreadDollars)

	return &QuoteResult{
		MarketID:      book.MarketID,
		MidYes:        midYes,
		MidNo:         midNo,
		BestBid:       bestBid,
		BestAsk:       bestAsk,
		Yes:           yes,
		No:            no,
		TotalValueUSD: math.Max(valueYes, valueNo),
		MinLiquidity:  minLiquidity,
		MinSpread:     settings.MinSpreadCents,
		ComputedAt:    time.Now(),
	}, nil
}

// admit 组装单个方向的报价结果并判定准入。
// 价差检查只在候选价落到绝对下限时才生效，其余情况视为天然满足。
func admit(price, shares, value, liquidity, mid, minLiquidity, minSpreadDollars float64) QuoteSide {
	s := QuoteSide{
		Price:             price,
		Shares:            shares,
		ValueUSD:          value,
		LiquidityAhead:    liquidity,
		Spread:            math.Abs(mid - price),
		CanPlaceLiquidity: liquidity >= minLiquidity,
		CanPlaceSpread:    true,
	}
	if price <= MinOrderPrice && s.Spread < minSpreadDollars {
		s.CanPlaceSpread = false
	}
	s.CanPlace = s.CanPlaceLiquidity && s.CanPlaceSpread
	return s
}

// SizeShares 计算下单数量：USDT 仓位换算成 shares，shares 仓位直接使用，
// 然后补足 1 美元最小名义金额并取整到十分位。
func SizeShares(settings config.TokenSettings, price float64) (shares, valueUSD float64, err error) {
	switch {
	case settings.PositionSizeUSDT != nil:
		shares = SharesFromUSDT(*settings.PositionSizeUSDT, price)
	case settings.PositionSizeShares != nil:
		shares = *settings.PositionSizeShares
	default:
		return 0, 0, ErrNoPositionSize
	}

	shares = AdjustToMinOrderValue(shares, price)
	shares = RoundSharesToTenths(shares, price)
	return shares, shares * price, nil
}

// SharesFromUSDT 按价格把 USDT 仓位换算成 shares
func SharesFromUSDT(usdt, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return usdt / price
}

// AdjustToMinOrderValue 名义金额不足 1 美元时抬高 shares
func AdjustToMinOrderValue(shares, price float64) float64 {
	if price <= 0 {
		return math.Max(shares, MinOrderValueUSD/MinOrderPrice)
	}
	if shares*price < MinOrderValueUSD {
		return MinOrderValueUSD / price
	}
	return shares
}

// RoundSharesToTenths 把 shares 取整到十分位，取整导致名义金额跌破
// 1 美元时按 0.1 递增修复（只增不减）。
func RoundSharesToTenths(shares, price float64) float64 {
	d := decimal.NewFromFloat(shares).Round(1)
	p := decimal.NewFromFloat(price)
	minValue := decimal.NewFromFloat(MinOrderValueUSD)
	step := decimal.NewFromFloat(0.1)

	if price > 0 {
		for d.Mul(p).LessThan(minValue) {
			d = d.Add(step)
		}
	}
	f, _ := d.Float64()
	return f
}

func ClampPrice(price float64) float64 {
	return math.Max(MinOrderPrice, math.Min(price, MaxOrderPrice))
}
