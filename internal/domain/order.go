package domain

import "time"

// ActiveOrder 当前挂在盘口的我方订单（每个 outcome 槽位最多一个）。
//
// 下单成功时创建，撤单成功（或撤单返回 404 确认已不存在）时销毁；
// 改价时整体替换，不做原地修改。
type ActiveOrder struct {
	OrderID  string
	Hash     string // 签名订单的 typed-data hash
	Outcome  Outcome
	Price    float64
	Shares   float64
	PlacedAt time.Time
}

// Notional 订单名义价值（USDT）
func (o *ActiveOrder) Notional() float64 {
	if o == nil {
		return 0
	}
	return o.Price * o.Shares
}

// Clone 返回防御性拷贝
func (o *ActiveOrder) Clone() *ActiveOrder {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// ActiveOrderPair 两个 outcome 槽位的快照（nil 表示该槽位为空）
type ActiveOrderPair struct {
	Yes *ActiveOrder
	No  *ActiveOrder
}

// Get 按 outcome 取槽位
func (p ActiveOrderPair) Get(outcome Outcome) *ActiveOrder {
	if outcome == OutcomeYes {
		return p.Yes
	}
	return p.No
}

// OrderStats 下单/撤单累计计数
type OrderStats struct {
	Placed    int
	Cancelled int
}

// OpenOrder 交易所返回的未成交订单（对账路径使用）
type OpenOrder struct {
	ID      string
	TokenID string
	Price   float64
	Shares  float64
}
