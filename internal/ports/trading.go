package ports

import (
	"context"
	"encoding/json"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
)

// Small capability interfaces shared across layers (oms/controller/transport).
//
// NOTE: 放在独立包里避免 oms、controller 和 predict 传输层之间的循环依赖。

// SignRequest 一次下单签名所需的语义字段。
// 编码和加密细节由签名方负责，核心只提供语义输入。
type SignRequest struct {
	TokenID        string  // 结果代币的链上标识
	Price          float64 // 每 share 价格（美元）
	Shares         float64
	FeeRateBps     int
	IsNegRisk      bool
	IsYieldBearing bool
}

// SignedOrder 已签名的订单载荷。Payload 对核心不透明，原样透传给交易 API。
type SignedOrder struct {
	Hash          string
	PricePerShare string // wei 定标的字符串，随订单一起提交
	Payload       json.RawMessage
}

// OrderSigner 订单签名方
type OrderSigner interface {
	SignOrder(ctx context.Context, req SignRequest) (*SignedOrder, error)
}

// TokenRefresher 鉴权令牌刷新（401 时由重试循环触发一次）
type TokenRefresher interface {
	RefreshAuthToken(ctx context.Context) (string, error)
}

// TradingAPI 交易所下单接口
type TradingAPI interface {
	// PlaceOrder 提交已签名订单，成功返回交易所订单 ID
	PlaceOrder(ctx context.Context, signed *SignedOrder) (orderID string, err error)
	// CancelOrders 按 ID 批量撤单
	CancelOrders(ctx context.Context, ids []string) error
	// ListOpenOrders 列出市场当前的未成交订单
	ListOpenOrders(ctx context.Context, marketID string) ([]domain.OpenOrder, error)
}
