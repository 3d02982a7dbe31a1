package quoter

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
)

// LiquidityAhead 计算候选价前方的挂单流动性（USDT）。
//
// Yes 方向取 bids 中价格严格高于候选价的档位；No 方向取 asks
// 换算成 No 价（1 - yesPrice）后严格高于候选 No 价的档位。
// 如果我方在该方向已有挂单且价格严格高于候选价，其名义金额会被扣除
// （挂单不应抬高自己的准入信号），结果不会为负。
func LiquidityAhead(book *domain.OrderBookSnapshot, outcome domain.Outcome, price float64, own *domain.ActiveOrder) float64 {
	if book == nil || !book.HasBothSides() {
		return 0
	}

	total := 0.0
	switch outcome {
	case domain.OutcomeYes:
		// bids 按价格降序，低于候选价后可以提前退出
		for _, lvl := range book.Bids {
			if lvl.Price > price {
				total += lvl.Price * lvl.Size
			} else {
				break
			}
		}
	case domain.OutcomeNo:
		// asks 按 Yes 价升序，换算成 No 价后是降序
		for _, lvl := range book.Asks {
			noPrice := domain.NoPrice(lvl.Price)
			if noPrice > price {
				total += noPrice * lvl.Size
			} else {
				break
			}
		}
	}

	if own != nil && own.Price > price {
		total -= own.Price * own.Shares
	}
	return math.Max(0, total)
}

// FindPriceByTargetLiquidity 深度回溯：沿盘口累计流动性，返回累计量首次达到
// targetLiquidity 的档位价下移一个 tick 的价格。
//
// 整本盘口都不够时返回最差档位下移一个 tick 且 reached=false，
// 调用方据此判定目标流动性不可达。空盘口返回 (0, false)。
func FindPriceByTargetLiquidity(book *domain.OrderBookSnapshot, outcome domain.Outcome, targetLiquidity float64, precision int) (price float64, reached bool) {
	if book == nil || !book.HasBothSides() {
		return 0, false
	}

	tick := 1 / math.Pow10(precision)
	accumulated := 0.0

	switch outcome {
	case domain.OutcomeYes:
		for _, lvl := range book.Bids {
			accumulated += lvl.Price * lvl.Size
			if accumulated >= targetLiquidity {
				return RoundPrice(lvl.Price-tick, precision), true
			}
		}
		worst := book.Bids[len(book.Bids)-1].Price
		return RoundPrice(worst-tick, precision), false

	case domain.OutcomeNo:
		for _, lvl := range book.Asks {
			noPrice := domain.NoPrice(lvl.Price)
			accumulated += noPrice * lvl.Size
			if accumulated >= targetLiquidity {
				return RoundPrice(noPrice-tick, precision), true
			}
		}
		worst := domain.NoPrice(book.Asks[len(book.Asks)-1].Price)
		return RoundPrice(worst-tick, precision), false
	}
	return 0, false
}

// RoundPrice 按市场精度四舍五入（2 位 = 整分，3 位 = 十分之一分）
func RoundPrice(price float64, precision int) float64 {
	if precision != 2 {
		precision = 3
	}
	f, _ := decimal.NewFromFloat(price).Round(int32(precision)).Float64()
	return f
}
