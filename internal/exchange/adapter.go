package exchange

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/client"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/signing"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

// TradingAdapter 把 Predict HTTP 客户端适配成订单管理器的交易接口
type TradingAdapter struct {
	client *client.Client
}

func NewTradingAdapter(c *client.Client) *TradingAdapter {
	return &TradingAdapter{client: c}
}

var _ ports.TradingAPI = (*TradingAdapter)(nil)

func (a *TradingAdapter) PlaceOrder(ctx context.Context, signed *ports.SignedOrder) (string, error) {
	resp, err := a.client.PlaceOrder(ctx, types.PlaceOrderData{
		PricePerShare: signed.PricePerShare,
		Strategy:      "LIMIT",
		SlippageBps:   "0",
		Order:         signed.Payload,
	})
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", errors.New("下单响应缺少订单 ID")
	}
	return resp.Data.ID, nil
}

func (a *TradingAdapter) CancelOrders(ctx context.Context, ids []string) error {
	return a.client.CancelOrders(ctx, ids)
}

func (a *TradingAdapter) ListOpenOrders(ctx context.Context, marketID string) ([]domain.OpenOrder, error) {
	orders, err := a.client.ListOpenOrders(ctx, marketID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, _ := o.Price.Float64()
		shares, _ := o.Shares.Float64()
		out = append(out, domain.OpenOrder{
			ID:      o.ID,
			TokenID: o.TokenID,
			Price:   price,
			Shares:  shares,
		})
	}
	return out, nil
}

// SignerAdapter 把订单构造器适配成签名接口
type SignerAdapter struct {
	builder *signing.Builder
}

func NewSignerAdapter(b *signing.Builder) *SignerAdapter {
	return &SignerAdapter{builder: b}
}

var _ ports.OrderSigner = (*SignerAdapter)(nil)

func (a *SignerAdapter) SignOrder(ctx context.Context, req ports.SignRequest) (*ports.SignedOrder, error) {
	amounts := signing.LimitOrderAmounts(req.Price, req.Shares)
	payload, hash, err := a.builder.SignLimitBuy(req.TokenID, amounts, req.FeeRateBps, req.IsNegRisk, req.IsYieldBearing)
	if err != nil {
		return nil, err
	}
	return &ports.SignedOrder{
		Hash:          hash,
		PricePerShare: amounts.PricePerShare.String(),
		Payload:       payload,
	}, nil
}

// AuthAdapter JWT 刷新：取登录消息、签名、换取新令牌。
// 成功后客户端令牌已更新，调用方直接重试即可。
type AuthAdapter struct {
	client  *client.Client
	builder *signing.Builder
}

func NewAuthAdapter(c *client.Client, b *signing.Builder) *AuthAdapter {
	return &AuthAdapter{client: c, builder: b}
}

var _ ports.TokenRefresher = (*AuthAdapter)(nil)

func (a *AuthAdapter) RefreshAuthToken(ctx context.Context) (string, error) {
	message, err := a.client.GetAuthMessage(ctx)
	if err != nil {
		return "", errors.Wrap(err, "获取登录消息失败")
	}
	sig, err := a.builder.SignMessage(message)
	if err != nil {
		return "", err
	}
	token, err := a.client.Authenticate(ctx, a.builder.MakerAddress(), message, sig)
	if err != nil {
		return "", errors.Wrap(err, "换取 JWT 失败")
	}
	return token, nil
}
