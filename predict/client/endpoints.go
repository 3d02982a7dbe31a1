package client

// Predict API 路径
const (
	EndpointAuthMessage  = "/v1/auth/message"
	EndpointAuth         = "/v1/auth"
	EndpointOrders       = "/v1/orders"
	EndpointOrdersRemove = "/v1/orders/remove"
	EndpointMarket       = "/v1/markets/{marketId}"
	EndpointOrderbook    = "/v1/markets/{marketId}/orderbook"
)
