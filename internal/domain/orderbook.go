package domain

import "time"

// PriceLevel 订单簿中的一档（价格 + 数量，单位均为 Yes 口径）
type PriceLevel struct {
	Price float64
	Size  float64
}

// Notional 该档的名义价值（USDT）
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// OrderBookSnapshot 某个市场的完整订单簿快照。
//
// 约定：
//   - Bids 按价格从高到低排序（最优买价在前）
//   - Asks 按价格从低到高排序（最优卖价在前）
//   - 全部为 Yes 方向的报价；No 方向通过镜像换算（no = 1 - yes）
//
// 快照一经接收不再修改，下一条快照整体替换上一条（没有增量 diff）。
type OrderBookSnapshot struct {
	MarketID   string
	Bids       []PriceLevel
	Asks       []PriceLevel
	ReceivedAt time.Time
}

// HasBothSides 买卖两侧是否都有挂单
func (b *OrderBookSnapshot) HasBothSides() bool {
	return b != nil && len(b.Bids) > 0 && len(b.Asks) > 0
}

// BestBid 最优买价（Yes）
func (b *OrderBookSnapshot) BestBid() (float64, bool) {
	if b == nil || len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk 最优卖价（Yes）
func (b *OrderBookSnapshot) BestAsk() (float64, bool) {
	if b == nil || len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// MidYes 中间价（Yes）。两侧任一为空时返回 false。
func (b *OrderBookSnapshot) MidYes() (float64, bool) {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// NoPrice 把 Yes 价格换算成 No 价格（yes + no = 1）
func NoPrice(yesPrice float64) float64 {
	return 1.0 - yesPrice
}

// YesPrice 把 No 价格换算成 Yes 价格
func YesPrice(noPrice float64) float64 {
	return 1.0 - noPrice
}
