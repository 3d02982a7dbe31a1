package ports

import (
	"context"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/quoter"
)

// BookHandler 处理盘口快照（同一市场按到达顺序串行投递）
type BookHandler interface {
	OnOrderBook(ctx context.Context, snapshot *domain.OrderBookSnapshot)
}

// QuoteUpdate 每轮盘口处理后对外发布的状态
type QuoteUpdate struct {
	MarketID string
	Quote    *quoter.QuoteResult // 盘口不完整时为 nil
	Orders   domain.ActiveOrderPair
	Stats    domain.OrderStats
}

// QuoteSink 消费报价状态的展示/监控边界。
// 实现必须快速返回，不得阻塞控制器的更新循环。
type QuoteSink interface {
	OnQuote(update QuoteUpdate)
}

// QuoteSinkFunc 函数适配器
type QuoteSinkFunc func(update QuoteUpdate)

func (f QuoteSinkFunc) OnQuote(u QuoteUpdate) { f(u) }
