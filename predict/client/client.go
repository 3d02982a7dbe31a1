package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

// Client Predict API 的 HTTP 客户端。
//
// 不做自动重试：下单/撤单的重试协议由上层订单管理器控制，
// 这里只负责编解码和把非 2xx 响应转成结构化的 APIError。
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter

	mu     sync.RWMutex
	apiKey string
	jwt    string
}

// Options 客户端配置
type Options struct {
	BaseURL           string
	APIKey            string
	JWT               string
	RequestsPerSecond int
	Timeout           time.Duration
}

// New 创建客户端
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}

	// resty 自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsPerSecond),
		apiKey:  opts.APIKey,
		jwt:     opts.JWT,
	}
}

// SetJWT 更新鉴权令牌（令牌刷新后调用）
func (c *Client) SetJWT(jwt string) {
	c.mu.Lock()
	c.jwt = jwt
	c.mu.Unlock()
}

// JWT 当前鉴权令牌
func (c *Client) JWT() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwt
}

func (c *Client) newRequest(ctx context.Context, authed bool) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "限速等待被取消")
	}
	r := c.http.R().SetContext(ctx)
	// 部分网关返回 JSON 时不带 Content-Type，强制按 JSON 解码
	r.ForceContentType("application/json")
	c.mu.RLock()
	r.SetHeader("x-api-key", c.apiKey)
	if authed && c.jwt != "" {
		r.SetHeader("Authorization", "Bearer "+c.jwt)
	}
	c.mu.RUnlock()
	return r, nil
}

// apiError 把非 2xx 响应转成 APIError，message 字段尽力解析
func apiError(resp *resty.Response) error {
	body := string(resp.Body())
	if len(body) > 500 {
		body = body[:500]
	}
	var envelope struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &envelope)
	return &types.APIError{
		StatusCode: resp.StatusCode(),
		Message:    envelope.Message,
		Body:       body,
	}
}

// PlaceOrder 提交已签名订单
func (c *Client) PlaceOrder(ctx context.Context, data types.PlaceOrderData) (*types.PlaceOrderResponse, error) {
	r, err := c.newRequest(ctx, true)
	if err != nil {
		return nil, err
	}
	var out types.PlaceOrderResponse
	resp, err := r.
		SetBody(types.PlaceOrderRequest{Data: data}).
		SetResult(&out).
		Post(EndpointOrders)
	if err != nil {
		return nil, errors.Wrap(err, "下单请求失败")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// CancelOrders 按 ID 批量撤单
func (c *Client) CancelOrders(ctx context.Context, ids []string) error {
	r, err := c.newRequest(ctx, true)
	if err != nil {
		return err
	}
	resp, err := r.
		SetBody(types.CancelOrdersRequest{Data: types.CancelOrdersData{IDs: ids}}).
		Post(EndpointOrdersRemove)
	if err != nil {
		return errors.Wrap(err, "撤单请求失败")
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// ListOpenOrders 列出市场当前的未成交订单
func (c *Client) ListOpenOrders(ctx context.Context, marketID string) ([]types.OrderJSON, error) {
	r, err := c.newRequest(ctx, true)
	if err != nil {
		return nil, err
	}
	var out types.ListOrdersResponse
	resp, err := r.
		SetQueryParam("status", "OPEN").
		SetQueryParam("marketId", marketID).
		SetResult(&out).
		Get(EndpointOrders)
	if err != nil {
		return nil, errors.Wrap(err, "查询未成交订单失败")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Data, nil
}

// GetMarket 获取市场元数据（控制器启动时调用一次）
func (c *Client) GetMarket(ctx context.Context, marketID string) (*types.MarketJSON, error) {
	r, err := c.newRequest(ctx, false)
	if err != nil {
		return nil, err
	}
	var out types.MarketResponse
	resp, err := r.
		SetPathParam("marketId", marketID).
		SetResult(&out).
		Get(EndpointMarket)
	if err != nil {
		return nil, errors.Wrap(err, "获取市场元数据失败")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out.Data, nil
}

// GetOrderbook 获取盘口快照（公开接口，启动时兜底用）
func (c *Client) GetOrderbook(ctx context.Context, marketID string) (*types.OrderbookJSON, error) {
	r, err := c.newRequest(ctx, false)
	if err != nil {
		return nil, err
	}
	var out types.OrderbookResponse
	resp, err := r.
		SetPathParam("marketId", marketID).
		SetResult(&out).
		Get(EndpointOrderbook)
	if err != nil {
		return nil, errors.Wrap(err, "获取盘口快照失败")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out.Data, nil
}

// GetAuthMessage 获取待签名的登录消息
func (c *Client) GetAuthMessage(ctx context.Context) (string, error) {
	r, err := c.newRequest(ctx, false)
	if err != nil {
		return "", err
	}
	var out types.AuthMessageResponse
	resp, err := r.SetResult(&out).Get(EndpointAuthMessage)
	if err != nil {
		return "", errors.Wrap(err, "获取登录消息失败")
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	return out.Data.Message, nil
}

// Authenticate 用签名换取 JWT，成功后自动更新客户端令牌
func (c *Client) Authenticate(ctx context.Context, signer, message, signature string) (string, error) {
	r, err := c.newRequest(ctx, false)
	if err != nil {
		return "", err
	}
	var out types.AuthResponse
	resp, err := r.
		SetBody(types.AuthRequest{Signer: signer, Message: message, Signature: signature}).
		SetResult(&out).
		Post(EndpointAuth)
	if err != nil {
		return "", errors.Wrap(err, "获取 JWT 失败")
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	c.SetJWT(out.Data.Token)
	return out.Data.Token, nil
}
