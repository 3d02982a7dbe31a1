package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// APIError Predict API 返回的结构化错误。
// 重试层通过状态码和响应体区分限流、鉴权过期和保证金不足。
type APIError struct {
	StatusCode int
	Message    string // 响应 JSON 的 message 字段（若有）
	Body       string // 原始响应体，截断后的
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("predict api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("predict api: %d %s", e.StatusCode, e.Body)
}

// IsRateLimited 是否被限流（429）
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsInvalidJWT 鉴权令牌过期（401 Invalid JWT），触发一次令牌刷新
func (e *APIError) IsInvalidJWT() bool {
	return e.StatusCode == 401 && e.Message == "Invalid JWT"
}

// IsInsufficientCollateral 保证金不足（400），触发对账路径
func (e *APIError) IsInsufficientCollateral() bool {
	return e.StatusCode == 400 &&
		(strings.Contains(e.Body, "Insufficient collateral") ||
			strings.Contains(e.Body, "CollateralPerMarketExceededError"))
}

// IsNotFound 订单不存在（404），撤单时视为成功
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError 服务端错误（5xx），按网络错误重试
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// AsAPIError 从错误链中提取 APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
