package types

import "encoding/json"

// PlaceOrderRequest POST /v1/orders 请求体
type PlaceOrderRequest struct {
	Data PlaceOrderData `json:"data"`
}

// PlaceOrderData 下单载荷。金额字段以 wei 字符串编码，order 是
// 签名方产出的 camelCase 订单结构加 hash，核心不对其解码。
type PlaceOrderData struct {
	PricePerShare string          `json:"pricePerShare"`
	Strategy      string          `json:"strategy"`
	SlippageBps   string          `json:"slippageBps"`
	Order         json.RawMessage `json:"order"`
}

// PlaceOrderResponse POST /v1/orders 响应
type PlaceOrderResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// CancelOrdersRequest POST /v1/orders/remove 请求体
type CancelOrdersRequest struct {
	Data CancelOrdersData `json:"data"`
}

type CancelOrdersData struct {
	IDs []string `json:"ids"`
}

// CancelOrdersResponse POST /v1/orders/remove 响应
type CancelOrdersResponse struct {
	Success bool `json:"success"`
}

// OrderJSON GET /v1/orders 返回的订单条目
type OrderJSON struct {
	ID       string      `json:"id"`
	MarketID string      `json:"marketId"`
	TokenID  string      `json:"tokenId"`
	Status   string      `json:"status"`
	Price    json.Number `json:"price"`
	Shares   json.Number `json:"shares"`
}

// ListOrdersResponse GET /v1/orders 响应
type ListOrdersResponse struct {
	Success bool        `json:"success"`
	Data    []OrderJSON `json:"data"`
}
