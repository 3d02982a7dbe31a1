package types

// OutcomeJSON 市场元数据中的结果项
type OutcomeJSON struct {
	Name      string `json:"name"`
	OnChainID string `json:"onChainId"`
}

// MarketJSON GET /v1/markets/{id} 的市场元数据
type MarketJSON struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Status           string        `json:"status"`
	DecimalPrecision int           `json:"decimalPrecision"`
	FeeRateBps       int           `json:"feeRateBps"`
	IsNegRisk        bool          `json:"isNegRisk"`
	IsYieldBearing   bool          `json:"isYieldBearing"`
	Outcomes         []OutcomeJSON `json:"outcomes"`
}

// MarketResponse GET /v1/markets/{id} 响应
type MarketResponse struct {
	Success bool       `json:"success"`
	Data    MarketJSON `json:"data"`
}

// OrderbookJSON 盘口数据，bids/asks 是 [price, size] 数对，
// REST 快照和 WS 推送共用同一结构
type OrderbookJSON struct {
	Bids [][]float64 `json:"bids"`
	Asks [][]float64 `json:"asks"`
}

// OrderbookResponse GET /v1/markets/{id}/orderbook 响应
type OrderbookResponse struct {
	Success bool          `json:"success"`
	Data    OrderbookJSON `json:"data"`
}

// AuthMessageResponse GET /v1/auth/message 响应
type AuthMessageResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Message string `json:"message"`
	} `json:"data"`
}

// AuthRequest POST /v1/auth 请求体
type AuthRequest struct {
	Signer    string `json:"signer"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// AuthResponse POST /v1/auth 响应
type AuthResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token string `json:"token"`
	} `json:"data"`
}
