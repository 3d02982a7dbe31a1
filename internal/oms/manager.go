package oms

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/quoter"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/logger"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

// midEpsilon mid 价位移超过该值视为行情变化，触发全撤重挂
const midEpsilon = 1e-4

var (
	// ErrNothingToCancel 槽位为空，无单可撤（不发网络请求）
	ErrNothingToCancel = errors.New("没有可撤销的订单")
	// ErrInFlight 同一槽位已有下单/撤单在途
	ErrInFlight = errors.New("该方向已有操作在途")
	// ErrLockTimeout 超时未抢到状态锁，调用方跳过本轮
	ErrLockTimeout = errors.New("获取状态锁超时")
	// ErrConfig 市场元数据缺失或不完整（不重试）
	ErrConfig = errors.New("市场元数据配置错误")
)

// Options 订单管理器的时间参数（测试中可缩短）
type Options struct {
	MaxAttempts     int
	RetryDelay      time.Duration    // 网络/5xx 错误的固定退避
	RateLimitDelays [2]time.Duration // 429 的固定退避表
	SettleDelay     time.Duration    // 对账撤单后等待资金释放
}

// DefaultOptions 与交易所限流特性匹配的默认值
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		RetryDelay:      time.Second,
		RateLimitDelays: [2]time.Duration{30 * time.Second, 65 * time.Second},
		SettleDelay:     time.Second,
	}
}

// Manager 单个市场的订单生命周期管理。
//
// 不变式：每个 (market, outcome) 同时至多一张挂单、至多一个在途操作。
// 所有共享状态由带超时语义的单锁保护，跨市场之间没有共享锁。
type Manager struct {
	marketID string
	market   *domain.MarketInfo
	tokens   map[domain.Outcome]string

	api    ports.TradingAPI
	signer ports.OrderSigner
	auth   ports.TokenRefresher
	opts   Options
	log    *logrus.Entry

	// lockC 容量为 1 的信号量，支持超时抢锁
	lockC chan struct{}

	slots      [2]*domain.ActiveOrder
	placing    [2]bool
	cancelling [2]bool
	flushing   bool // placeFromQuote 市场级互斥
	stats      domain.OrderStats
	lastMidYes *float64
}

// NewManager 创建订单管理器。市场元数据必须包含两个 outcome 的链上标识。
func NewManager(market *domain.MarketInfo, api ports.TradingAPI, signer ports.OrderSigner, auth ports.TokenRefresher, opts Options) (*Manager, error) {
	tokens, err := market.BuildTokenTable()
	if err != nil {
		return nil, errors.Wrap(ErrConfig, err.Error())
	}
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}
	return &Manager{
		marketID: market.ID,
		market:   market,
		tokens:   tokens,
		api:      api,
		signer:   signer,
		auth:     auth,
		opts:     opts,
		log:      logger.WithField("market", market.ID),
		lockC:    make(chan struct{}, 1),
	}, nil
}

func (m *Manager) lock() { m.lockC <- struct{}{} }

func (m *Manager) unlock() { <-m.lockC }

func (m *Manager) tryLock(timeout time.Duration) bool {
	select {
	case m.lockC <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// PlaceOrder 签名并提交一张 BUY 限价单。
// 同槽位已有在途下单时立即返回 ErrInFlight，不发网络请求。
func (m *Manager) PlaceOrder(ctx context.Context, outcome domain.Outcome, price, shares float64) (*domain.ActiveOrder, error) {
	tokenID, ok := m.tokens[outcome]
	if !ok || tokenID == "" {
		return nil, errors.Wrapf(ErrConfig, "outcome %s 没有链上标识", outcome)
	}

	idx := outcome.Index()
	m.lock()
	if m.placing[idx] {
		m.unlock()
		return nil, ErrInFlight
	}
	m.placing[idx] = true
	m.unlock()
	defer func() {
		m.lock()
		m.placing[idx] = false
		m.unlock()
	}()

	m.log.Infof("下单 %s: 价格=%.4f shares=%.1f", outcome.Upper(), price, shares)

	signed, err := m.signer.SignOrder(ctx, ports.SignRequest{
		TokenID:        tokenID,
		Price:          price,
		Shares:         shares,
		FeeRateBps:     m.market.FeeRateBps,
		IsNegRisk:      m.market.IsNegRisk,
		IsYieldBearing: m.market.IsYieldBearing,
	})
	if err != nil {
		return nil, errors.Wrap(err, "订单签名失败")
	}

	orderID, err := m.submitWithRetry(ctx, outcome, signed)
	if err != nil {
		return nil, err
	}

	order := &domain.ActiveOrder{
		OrderID:  orderID,
		Hash:     signed.Hash,
		Outcome:  outcome,
		Price:    price,
		Shares:   shares,
		PlacedAt: time.Now(),
	}
	m.lock()
	m.slots[idx] = order
	m.stats.Placed++
	m.unlock()

	m.log.Infof("✓ 订单 %s 已挂出: id=%s hash=%s", outcome.Upper(), orderID, signed.Hash)
	return order.Clone(), nil
}

// submitWithRetry 提交订单，执行完整的重试协议。
func (m *Manager) submitWithRetry(ctx context.Context, outcome domain.Outcome, signed *ports.SignedOrder) (string, error) {
	jwtRefreshed := false
	reconciled := false

	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		orderID, err := m.api.PlaceOrder(ctx, signed)
		if err == nil {
			return orderID, nil
		}

		apiErr, isAPI := types.AsAPIError(err)
		if isAPI {
			switch {
			case apiErr.IsInvalidJWT():
				// 令牌刷新不占用重试预算
				if jwtRefreshed {
					return "", errors.Wrap(err, "令牌刷新后仍然鉴权失败")
				}
				jwtRefreshed = true
				m.log.Warnf("JWT 失效，刷新令牌后重试下单 %s", outcome.Upper())
				if _, rerr := m.auth.RefreshAuthToken(ctx); rerr != nil {
					return "", errors.Wrap(rerr, "刷新 JWT 失败")
				}
				attempt--
				continue

			case apiErr.IsInsufficientCollateral():
				// 资金可能被本市场的旧挂单冻结：全部撤掉再试一次
				if reconciled {
					return "", errors.Wrap(err, "对账后保证金仍不足")
				}
				reconciled = true
				m.log.Warnf("保证金不足，尝试撤销本市场挂单释放资金...")
				if rerr := m.reconcileCollateral(ctx); rerr != nil {
					return "", errors.Wrap(rerr, "保证金对账失败")
				}
				continue

			case apiErr.IsRateLimited():
				if attempt >= m.opts.MaxAttempts {
					return "", errors.Wrap(err, "限流重试耗尽")
				}
				delay := m.rateLimitDelay(attempt)
				m.log.Warnf("被限流（尝试 %d/%d），%v 后重试", attempt, m.opts.MaxAttempts, delay)
				if werr := sleepCtx(ctx, delay); werr != nil {
					return "", werr
				}
				continue

			case apiErr.IsServerError():
				// 按网络错误处理

			default:
				// 其他 4xx 不重试
				return "", errors.Wrapf(err, "下单 %s 被拒绝", outcome.Upper())
			}
		}

		// 网络错误或 5xx
		if attempt >= m.opts.MaxAttempts {
			return "", errors.Wrapf(err, "下单 %s 重试耗尽（%d 次）", outcome.Upper(), m.opts.MaxAttempts)
		}
		m.log.Warnf("下单 %s 失败（尝试 %d/%d）: %v，%v 后重试", outcome.Upper(), attempt, m.opts.MaxAttempts, err, m.opts.RetryDelay)
		if werr := sleepCtx(ctx, m.opts.RetryDelay); werr != nil {
			return "", werr
		}
	}
	return "", errors.Errorf("下单 %s 重试耗尽", outcome.Upper())
}

// reconcileCollateral 列出并撤销本市场的全部挂单，等待资金释放。
func (m *Manager) reconcileCollateral(ctx context.Context) error {
	open, err := m.api.ListOpenOrders(ctx, m.marketID)
	if err != nil {
		return errors.Wrap(err, "查询挂单失败")
	}
	if len(open) == 0 {
		return errors.New("没有可释放的挂单")
	}

	ids := make([]string, 0, len(open))
	for _, o := range open {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	m.log.Warnf("撤销 %d 张挂单以释放保证金", len(ids))
	if err := m.api.CancelOrders(ctx, ids); err != nil {
		return errors.Wrap(err, "批量撤单失败")
	}

	// 被撤掉的可能包含本地槽位里的订单，槽位随之清空
	m.lock()
	for idx := range m.slots {
		if m.slots[idx] != nil {
			m.slots[idx] = nil
			m.stats.Cancelled++
		}
	}
	m.unlock()

	return sleepCtx(ctx, m.opts.SettleDelay)
}

// CancelOrder 撤销某个方向的挂单。
// 槽位为空返回 ErrNothingToCancel（不发网络请求）；404 视为撤销成功。
func (m *Manager) CancelOrder(ctx context.Context, outcome domain.Outcome) error {
	idx := outcome.Index()

	m.lock()
	order := m.slots[idx]
	if order == nil {
		m.unlock()
		m.log.Debugf("没有活跃的 %s 订单可撤销", outcome.Upper())
		return ErrNothingToCancel
	}
	if m.cancelling[idx] {
		m.unlock()
		return ErrInFlight
	}
	m.cancelling[idx] = true
	m.unlock()
	defer func() {
		m.lock()
		m.cancelling[idx] = false
		m.unlock()
	}()

	m.log.Infof("撤销订单 %s: id=%s", outcome.Upper(), order.OrderID)
	if err := m.cancelWithRetry(ctx, outcome, order.OrderID); err != nil {
		return err
	}

	m.lock()
	m.slots[idx] = nil
	m.stats.Cancelled++
	m.unlock()
	m.log.Infof("✓ 订单 %s 已撤销: id=%s", outcome.Upper(), order.OrderID)
	return nil
}

func (m *Manager) cancelWithRetry(ctx context.Context, outcome domain.Outcome, orderID string) error {
	jwtRefreshed := false

	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		err := m.api.CancelOrders(ctx, []string{orderID})
		if err == nil {
			return nil
		}

		if apiErr, isAPI := types.AsAPIError(err); isAPI {
			switch {
			case apiErr.IsNotFound():
				// 订单已不存在（成交或已撤），视为撤销成功
				m.log.Warnf("订单 %s 不存在（可能已成交或已撤销）: id=%s", outcome.Upper(), orderID)
				return nil

			case apiErr.IsInvalidJWT():
				if jwtRefreshed {
					return errors.Wrap(err, "令牌刷新后仍然鉴权失败")
				}
				jwtRefreshed = true
				m.log.Warnf("JWT 失效，刷新令牌后重试撤单 %s", outcome.Upper())
				if _, rerr := m.auth.RefreshAuthToken(ctx); rerr != nil {
					return errors.Wrap(rerr, "刷新 JWT 失败")
				}
				attempt--
				continue

			case apiErr.IsRateLimited():
				if attempt >= m.opts.MaxAttempts {
					return errors.Wrap(err, "限流重试耗尽")
				}
				delay := m.rateLimitDelay(attempt)
				m.log.Warnf("撤单被限流（尝试 %d/%d），%v 后重试", attempt, m.opts.MaxAttempts, delay)
				if werr := sleepCtx(ctx, delay); werr != nil {
					return werr
				}
				continue

			case apiErr.IsServerError():
				// 按网络错误处理

			default:
				return errors.Wrapf(err, "撤单 %s 被拒绝", outcome.Upper())
			}
		}

		if attempt >= m.opts.MaxAttempts {
			return errors.Wrapf(err, "撤单 %s 重试耗尽（%d 次）", outcome.Upper(), m.opts.MaxAttempts)
		}
		m.log.Warnf("撤单 %s 失败（尝试 %d/%d）: %v，%v 后重试", outcome.Upper(), attempt, m.opts.MaxAttempts, err, m.opts.RetryDelay)
		if werr := sleepCtx(ctx, m.opts.RetryDelay); werr != nil {
			return werr
		}
	}
	return errors.Errorf("撤单 %s 重试耗尽", outcome.Upper())
}

// CancelAll 并发撤销两个方向的挂单，结果是两边的逻辑与
//（空槽位视为成功，没有东西可撤不算失败）。
func (m *Manager) CancelAll(ctx context.Context) bool {
	var wg sync.WaitGroup
	results := make([]bool, 2)

	for _, outcome := range domain.Outcomes {
		wg.Add(1)
		go func(o domain.Outcome) {
			defer wg.Done()
			err := m.CancelOrder(ctx, o)
			results[o.Index()] = err == nil || errors.Is(err, ErrNothingToCancel)
		}(outcome)
	}
	wg.Wait()
	return results[0] && results[1]
}

// PlaceFromQuote 响应式批量入口：根据一次报价结果补齐缺失的挂单。
//
// mid 价相对上次调用位移超过 epsilon 时先全撤（过期价清洗）。
// 每个方向只有 canPlace 且槽位为空时才下单；流动性不足静默跳过。
// 市场级 flushing 标志让重叠调用合并成空操作。
func (m *Manager) PlaceFromQuote(ctx context.Context, quote *quoter.QuoteResult) bool {
	m.lock()
	if m.flushing {
		m.unlock()
		return true
	}
	m.flushing = true
	lastMid := m.lastMidYes
	m.unlock()
	defer func() {
		m.lock()
		m.flushing = false
		m.unlock()
	}()

	if lastMid != nil && math.Abs(*lastMid-quote.MidYes) > midEpsilon {
		m.log.Infof("mid 价变化: %.4f -> %.4f，撤销旧挂单", *lastMid, quote.MidYes)
		m.CancelAll(ctx)
	}
	mid := quote.MidYes
	m.lock()
	m.lastMidYes = &mid
	m.unlock()

	var wg sync.WaitGroup
	results := make([]bool, 2)

	for _, outcome := range domain.Outcomes {
		wg.Add(1)
		go func(o domain.Outcome) {
			defer wg.Done()
			results[o.Index()] = m.placeSide(ctx, o, quote)
		}(outcome)
	}
	wg.Wait()
	return results[0] && results[1]
}

func (m *Manager) placeSide(ctx context.Context, outcome domain.Outcome, quote *quoter.QuoteResult) bool {
	side := quote.Side(outcome)

	m.lock()
	hasActive := m.slots[outcome.Index()] != nil
	m.unlock()

	switch {
	case hasActive:
		// 已有挂单，不重复下
		return true
	case !side.CanPlace:
		m.log.Debugf("跳过 %s: 条件不满足 (流动性 $%.2f / $%.2f)", outcome.Upper(), side.LiquidityAhead, quote.MinLiquidity)
		return true
	default:
		_, err := m.PlaceOrder(ctx, outcome, side.Price, side.Shares)
		if err != nil && !errors.Is(err, ErrInFlight) {
			m.log.Warnf("下单 %s 失败: %v", outcome.Upper(), err)
			return false
		}
		return true
	}
}

// ActiveOrders 带超时的只读快照。抢锁超时返回 ErrLockTimeout，
// 调用方应视为“状态暂不可知”并跳过本轮。
func (m *Manager) ActiveOrders(timeout time.Duration) (domain.ActiveOrderPair, error) {
	if !m.tryLock(timeout) {
		return domain.ActiveOrderPair{}, ErrLockTimeout
	}
	defer m.unlock()
	return domain.ActiveOrderPair{
		Yes: m.slots[domain.OutcomeYes.Index()].Clone(),
		No:  m.slots[domain.OutcomeNo.Index()].Clone(),
	}, nil
}

// Stats 带超时的计数快照
func (m *Manager) Stats(timeout time.Duration) (domain.OrderStats, error) {
	if !m.tryLock(timeout) {
		return domain.OrderStats{}, ErrLockTimeout
	}
	defer m.unlock()
	return m.stats, nil
}

// MarketID 管理的市场
func (m *Manager) MarketID() string { return m.marketID }

// Market 市场元数据
func (m *Manager) Market() *domain.MarketInfo { return m.market }

func (m *Manager) rateLimitDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return m.opts.RateLimitDelays[0]
	}
	return m.opts.RateLimitDelays[1]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
