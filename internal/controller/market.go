package controller

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/oms"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/quoter"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/logger"
)

// marketLoop 单个市场的处理循环。
//
// 同一市场的快照按到达顺序串行处理；网络动作（下单/撤单/重定价）
// 派发到独立 goroutine，慢撤单不会阻塞后续盘口的观测。
type marketLoop struct {
	manager  *oms.Manager
	settings *config.SettingsStore
	sink     ports.QuoteSink
	opts     Options
	log      *logrus.Entry

	updates chan *domain.OrderBookSnapshot
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	book    *domain.OrderBookSnapshot // 最后收到的完整快照
	quoting bool
	busy    [2]bool // 每个方向正在进行的撤单/重定价派发
}

func newMarketLoop(manager *oms.Manager, settings *config.SettingsStore, sink ports.QuoteSink, opts Options) *marketLoop {
	return &marketLoop{
		manager:  manager,
		settings: settings,
		sink:     sink,
		opts:     opts,
		log:      logger.WithField("market", manager.MarketID()),
		updates:  make(chan *domain.OrderBookSnapshot, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

func (l *marketLoop) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	go l.run(ctx)
}

func (l *marketLoop) stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
}

// enqueue 投递快照。缓冲满时丢弃最旧的一条：快照是全量替换，
// 新快照总是包含旧快照之后的完整状态。
func (l *marketLoop) enqueue(snapshot *domain.OrderBookSnapshot) {
	for {
		select {
		case l.updates <- snapshot:
			return
		default:
			select {
			case <-l.updates:
				l.log.Debugf("盘口缓冲已满，丢弃最旧的快照")
			default:
			}
		}
	}
}

func (l *marketLoop) setQuoting(enabled bool) {
	l.mu.Lock()
	l.quoting = enabled
	l.mu.Unlock()
	if enabled {
		l.log.Infof("✓ 自动报价已开启")
	} else {
		l.log.Infof("自动报价已关闭")
	}
}

func (l *marketLoop) run(ctx context.Context) {
	defer close(l.done)
	l.log.Infof("市场循环启动: %s", l.manager.Market().Title)

	for {
		select {
		case <-ctx.Done():
			l.log.Infof("市场循环退出")
			return
		case snap := <-l.updates:
			l.handle(ctx, snap)
		}
	}
}

// handle 处理一条盘口快照：重算报价、比对挂单状态、派发动作。
// 任何单条快照的处理失败都不会终止循环。
func (l *marketLoop) handle(ctx context.Context, snap *domain.OrderBookSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("盘口处理 panic: %v", r)
		}
	}()

	l.mu.Lock()
	l.book = snap
	quoting := l.quoting
	l.mu.Unlock()

	settings := l.settings.Get(l.manager.MarketID())
	precision := l.manager.Market().DecimalPrecision

	// 抢锁超时表示订单状态暂不可知：仍然计算报价用于展示，
	// 但跳过本轮的下单/撤单决策。
	stateKnown := true
	orders, err := l.manager.ActiveOrders(l.opts.LockTimeout)
	if err != nil {
		if errors.Is(err, oms.ErrLockTimeout) {
			l.log.Debugf("订单状态抢锁超时，跳过本轮决策")
		} else {
			l.log.Warnf("读取订单状态失败: %v", err)
		}
		stateKnown = false
		orders = domain.ActiveOrderPair{}
	}

	quote, err := quoter.Calculate(snap, settings, precision, &orders)
	if err != nil {
		if !errors.Is(err, quoter.ErrEmptyBook) {
			l.log.Warnf("报价计算失败: %v", err)
		}
		l.emit(nil, orders)
		return
	}

	if quoting && stateKnown {
		l.reconcile(ctx, quote, orders, settings)
	}
	l.emit(quote, orders)
}

// reconcile 比对报价与挂单状态，派发撤单/重定价/下单。
// 两个方向相互独立，同一轮里可以同时触发。
func (l *marketLoop) reconcile(ctx context.Context, quote *quoter.QuoteResult, orders domain.ActiveOrderPair, settings config.TokenSettings) {
	needPlace := false

	for _, outcome := range domain.Outcomes {
		side := quote.Side(outcome)
		active := orders.Get(outcome)
		idx := outcome.Index()

		switch {
		case active != nil && !side.CanPlace:
			// 挂单刚刚不再满足准入：撤掉，自动价差模式下走重定价
			l.mu.Lock()
			dispatch := !l.busy[idx]
			if dispatch {
				l.busy[idx] = true
			}
			l.mu.Unlock()
			if !dispatch {
				continue
			}

			if !side.CanPlaceLiquidity && settings.AutoSpreadEnabled {
				l.log.Warnf("⚠️ %s 挂单: 前方流动性跌破阈值 ($%.2f < $%.2f)，重定价",
					outcome.Upper(), side.LiquidityAhead, quote.MinLiquidity)
				go l.reprice(ctx, outcome, active.Price)
			} else {
				reason := "准入条件不再满足"
				if !side.CanPlaceLiquidity {
					reason = "前方流动性跌破阈值"
				} else if !side.CanPlaceSpread {
					reason = "价差不足"
				}
				l.log.Warnf("⚠️ %s 挂单: %s，撤单", outcome.Upper(), reason)
				go l.plainCancel(ctx, outcome)
			}

		case active == nil && side.CanPlace:
			l.mu.Lock()
			if !l.busy[idx] {
				needPlace = true
			}
			l.mu.Unlock()
		}
	}

	if needPlace {
		// placeFromQuote 自带市场级合并保护，重叠派发坍缩成空操作
		go l.manager.PlaceFromQuote(ctx, quote)
	}
}

// reprice 自动价差恢复协议：撤掉过期挂单，等盘口消化撤单，再按最新盘口
// 回溯目标流动性得到新价。新价落在绝对下限、与旧价相差不到一个 tick、
// 或前方流动性复核仍不达标时放弃（目标流动性当前不可达），等待下一轮
// 合格的盘口更新重试。任何出口都会清掉在途标志。
func (l *marketLoop) reprice(ctx context.Context, outcome domain.Outcome, oldPrice float64) {
	idx := outcome.Index()
	defer func() {
		l.mu.Lock()
		l.busy[idx] = false
		l.mu.Unlock()
	}()

	if err := l.manager.CancelOrder(ctx, outcome); err != nil && !errors.Is(err, oms.ErrNothingToCancel) {
		l.log.Warnf("✗ 重定价: 撤销 %s 挂单失败: %v", outcome.Upper(), err)
		return
	}

	// 等待盘口反映撤单
	if err := sleepCtx(ctx, l.opts.SettleDelay); err != nil {
		return
	}

	l.mu.Lock()
	book := l.book
	l.mu.Unlock()

	settings := l.settings.Get(l.manager.MarketID())
	market := l.manager.Market()
	precision := market.DecimalPrecision
	tick := market.TickSize()
	target := settings.TargetLiquidityUSDT

	newPrice, _ := quoter.FindPriceByTargetLiquidity(book, outcome, target, precision)
	if newPrice <= 0 {
		l.log.Warnf("✗ 重定价: 无法为 %s 找到满足 $%.2f 流动性的价格", outcome.Upper(), target)
		return
	}

	mid, ok := book.MidYes()
	if !ok {
		return
	}
	if outcome == domain.OutcomeNo {
		mid = domain.NoPrice(mid)
	}

	newPrice = math.Max(newPrice, mid-settings.MaxAutoSpreadCents/100.0)
	newPrice = quoter.ClampPrice(quoter.RoundPrice(newPrice, precision))

	if newPrice <= quoter.MinOrderPrice {
		l.log.Warnf("✗ 重定价: %s 新价落到下限，$%.2f 流动性不可达", outcome.Upper(), target)
		return
	}
	if math.Abs(newPrice-oldPrice) < tick {
		l.log.Infof("重定价: %s 新价 %.4f 与旧价 %.4f 相差不足一个 tick，不重挂", outcome.Upper(), newPrice, oldPrice)
		return
	}

	// 我方挂单已撤销，复核时不再扣除
	if ahead := quoter.LiquidityAhead(book, outcome, newPrice, nil); ahead < target {
		l.log.Warnf("✗ 重定价: %s 新价 %.4f 前方流动性仍不足 ($%.2f < $%.2f)",
			outcome.Upper(), newPrice, ahead, target)
		return
	}

	shares, _, err := quoter.SizeShares(settings, newPrice)
	if err != nil {
		l.log.Warnf("✗ 重定价: %s 仓位计算失败: %v", outcome.Upper(), err)
		return
	}

	l.log.Infof("✓ 重定价: %s %.4f -> %.4f（目标流动性 $%.2f），重新挂单",
		outcome.Upper(), oldPrice, newPrice, target)
	if _, err := l.manager.PlaceOrder(ctx, outcome, newPrice, shares); err != nil {
		l.log.Warnf("✗ 重定价: %s 按新价下单失败: %v", outcome.Upper(), err)
	}
}

func (l *marketLoop) plainCancel(ctx context.Context, outcome domain.Outcome) {
	idx := outcome.Index()
	defer func() {
		l.mu.Lock()
		l.busy[idx] = false
		l.mu.Unlock()
	}()

	err := l.manager.CancelOrder(ctx, outcome)
	if err != nil && !errors.Is(err, oms.ErrNothingToCancel) && !errors.Is(err, oms.ErrInFlight) {
		l.log.Warnf("✗ 撤销 %s 挂单失败: %v", outcome.Upper(), err)
	}
}

// emit 发布本轮状态。sink 为 nil 时跳过。
func (l *marketLoop) emit(quote *quoter.QuoteResult, orders domain.ActiveOrderPair) {
	if l.sink == nil {
		return
	}
	stats, err := l.manager.Stats(l.opts.LockTimeout)
	if err != nil {
		stats = domain.OrderStats{}
	}
	l.sink.OnQuote(ports.QuoteUpdate{
		MarketID: l.manager.MarketID(),
		Quote:    quote,
		Orders:   orders,
		Stats:    stats,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
