package controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/oms"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
)

// ErrUnknownMarket 市场未注册
var ErrUnknownMarket = errors.New("未注册的市场")

// Options 控制器的时间参数（测试中可缩短）
type Options struct {
	SettleDelay time.Duration // 重定价协议里撤单后的等待时间
	LockTimeout time.Duration // 读取订单状态的抢锁预算
	QueueSize   int           // 每个市场的快照缓冲
}

// DefaultOptions 生产默认值
func DefaultOptions() Options {
	return Options{
		SettleDelay: time.Second,
		LockTimeout: 2 * time.Second,
		QueueSize:   16,
	}
}

// Controller 响应式控制器：把盘口快照路由到各市场的处理循环。
//
// 市场之间完全独立：每个市场一个 goroutine，一个市场持续失败
// 不影响其他市场的处理。
type Controller struct {
	settings *config.SettingsStore
	sink     ports.QuoteSink
	opts     Options

	mu      sync.RWMutex
	markets map[string]*marketLoop
}

// New 创建控制器。sink 可为 nil（不发布报价状态）。
func New(settings *config.SettingsStore, sink ports.QuoteSink, opts Options) *Controller {
	if opts.QueueSize <= 0 {
		opts = DefaultOptions()
	}
	return &Controller{
		settings: settings,
		sink:     sink,
		opts:     opts,
		markets:  make(map[string]*marketLoop),
	}
}

// AddMarket 注册市场并启动其处理循环。重复注册返回错误。
func (c *Controller) AddMarket(ctx context.Context, manager *oms.Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := manager.MarketID()
	if _, ok := c.markets[id]; ok {
		return errors.Errorf("市场 %s 已注册", id)
	}

	loop := newMarketLoop(manager, c.settings, c.sink, c.opts)
	c.markets[id] = loop
	loop.start(ctx)
	return nil
}

// RemoveMarket 停止并注销市场的处理循环（对应外部取消订阅）。
func (c *Controller) RemoveMarket(marketID string) {
	c.mu.Lock()
	loop, ok := c.markets[marketID]
	delete(c.markets, marketID)
	c.mu.Unlock()
	if ok {
		loop.stop()
	}
}

// OnOrderBook 实现 ports.BookHandler：把快照投递到对应市场的循环。
// 未注册的市场静默丢弃。
func (c *Controller) OnOrderBook(ctx context.Context, snapshot *domain.OrderBookSnapshot) {
	if snapshot == nil {
		return
	}
	c.mu.RLock()
	loop, ok := c.markets[snapshot.MarketID]
	c.mu.RUnlock()
	if ok {
		loop.enqueue(snapshot)
	}
}

// EnableQuoting 开启市场的自动报价。
func (c *Controller) EnableQuoting(marketID string) error {
	loop, err := c.loop(marketID)
	if err != nil {
		return err
	}
	loop.setQuoting(true)
	return nil
}

// DisableQuoting 关闭自动报价并撤掉两边挂单。
func (c *Controller) DisableQuoting(ctx context.Context, marketID string) error {
	loop, err := c.loop(marketID)
	if err != nil {
		return err
	}
	loop.setQuoting(false)
	loop.manager.CancelAll(ctx)
	return nil
}

// UpdateSettings 更新市场设置，下一次盘口计算生效。
func (c *Controller) UpdateSettings(marketID string, u config.SettingsUpdate) (config.TokenSettings, error) {
	if _, err := c.loop(marketID); err != nil {
		return config.TokenSettings{}, err
	}
	return c.settings.Update(marketID, u), nil
}

// Close 停止所有市场循环。
func (c *Controller) Close() {
	c.mu.Lock()
	loops := make([]*marketLoop, 0, len(c.markets))
	for id, loop := range c.markets {
		loops = append(loops, loop)
		delete(c.markets, id)
	}
	c.mu.Unlock()

	for _, loop := range loops {
		loop.stop()
	}
}

func (c *Controller) loop(marketID string) (*marketLoop, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loop, ok := c.markets[marketID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownMarket, marketID)
	}
	return loop, nil
}
