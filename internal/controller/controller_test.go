package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/oms"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/ports"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/config"
)

type fakeAPI struct {
	mu          sync.Mutex
	placeCalls  int
	cancelCalls [][]string
}

func (f *fakeAPI) PlaceOrder(ctx context.Context, signed *ports.SignedOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	return fmt.Sprintf("order-%d", f.placeCalls), nil
}

func (f *fakeAPI) CancelOrders(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, ids)
	return nil
}

func (f *fakeAPI) ListOpenOrders(ctx context.Context, marketID string) ([]domain.OpenOrder, error) {
	return nil, nil
}

func (f *fakeAPI) placeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls
}

func (f *fakeAPI) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelCalls)
}

// fakeSigner 记录每次签名请求的价格
type fakeSigner struct {
	mu     sync.Mutex
	prices []float64
}

func (f *fakeSigner) SignOrder(ctx context.Context, req ports.SignRequest) (*ports.SignedOrder, error) {
	f.mu.Lock()
	f.prices = append(f.prices, req.Price)
	f.mu.Unlock()
	return &ports.SignedOrder{Hash: "0xhash", PricePerShare: "1", Payload: json.RawMessage(`{}`)}, nil
}

func (f *fakeSigner) signedPrices() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.prices))
	copy(out, f.prices)
	return out
}

type fakeAuth struct{}

func (fakeAuth) RefreshAuthToken(ctx context.Context) (string, error) { return "jwt", nil }

type recordingSink struct {
	mu      sync.Mutex
	updates []ports.QuoteUpdate
}

func (s *recordingSink) OnQuote(u ports.QuoteUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *recordingSink) last() (ports.QuoteUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return ports.QuoteUpdate{}, false
	}
	return s.updates[len(s.updates)-1], true
}

func testMarket() *domain.MarketInfo {
	return &domain.MarketInfo{
		ID:               "mkt-1",
		Title:            "Test market",
		DecimalPrecision: 3,
		FeeRateBps:       200,
		Outcomes: []domain.MarketOutcome{
			{Name: "Yes", OnChainID: "111"},
			{Name: "No", OnChainID: "222"},
		},
	}
}

func snapshot(marketID string, bids, asks []domain.PriceLevel) *domain.OrderBookSnapshot {
	return &domain.OrderBookSnapshot{
		MarketID:   marketID,
		Bids:       bids,
		Asks:       asks,
		ReceivedAt: time.Now(),
	}
}

func deepBook(marketID string) *domain.OrderBookSnapshot {
	return snapshot(marketID,
		[]domain.PriceLevel{{Price: 0.50, Size: 10000}},
		[]domain.PriceLevel{{Price: 0.52, Size: 10000}},
	)
}

func fastOMSOptions() oms.Options {
	return oms.Options{
		MaxAttempts:     3,
		RetryDelay:      time.Millisecond,
		RateLimitDelays: [2]time.Duration{time.Millisecond, time.Millisecond},
		SettleDelay:     time.Millisecond,
	}
}

func fastOptions() Options {
	return Options{
		SettleDelay: 5 * time.Millisecond,
		LockTimeout: 500 * time.Millisecond,
		QueueSize:   8,
	}
}

type testRig struct {
	ctrl   *Controller
	api    *fakeAPI
	signer *fakeSigner
	sink   *recordingSink
	store  *config.SettingsStore
}

func newRig(t *testing.T, defaults config.TokenSettings) *testRig {
	t.Helper()
	api := &fakeAPI{}
	signer := &fakeSigner{}
	sink := &recordingSink{}
	store := config.NewSettingsStore(defaults)

	manager, err := oms.NewManager(testMarket(), api, signer, fakeAuth{}, fastOMSOptions())
	if err != nil {
		t.Fatalf("NewManager 失败: %v", err)
	}

	ctrl := New(store, sink, fastOptions())
	if err := ctrl.AddMarket(context.Background(), manager); err != nil {
		t.Fatalf("AddMarket 失败: %v", err)
	}
	t.Cleanup(ctrl.Close)

	return &testRig{ctrl: ctrl, api: api, signer: signer, sink: sink, store: store}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", what)
}

func TestQuotingDisabledComputesOnly(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))

	waitFor(t, time.Second, "报价发布", func() bool { return rig.sink.count() > 0 })
	time.Sleep(20 * time.Millisecond)

	if rig.api.placeCount() != 0 {
		t.Errorf("未开启报价时不应下单: placeCalls = %d", rig.api.placeCount())
	}
	last, _ := rig.sink.last()
	if last.Quote == nil {
		t.Fatalf("关闭报价时仍应发布计算结果")
	}
	if math.Abs(last.Quote.MidYes-0.51) > 1e-9 {
		t.Errorf("MidYes = %v, 期望 0.51", last.Quote.MidYes)
	}
}

func TestQuotingEnabledPlacesBothSides(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	if err := rig.ctrl.EnableQuoting("mkt-1"); err != nil {
		t.Fatalf("EnableQuoting 失败: %v", err)
	}
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))

	waitFor(t, time.Second, "双边挂单", func() bool { return rig.api.placeCount() == 2 })

	// 同一盘口重复送入不应产生重复下单
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))
	time.Sleep(30 * time.Millisecond)
	if rig.api.placeCount() != 2 {
		t.Errorf("重复快照导致重复下单: placeCalls = %d", rig.api.placeCount())
	}
}

func TestDisableQuotingCancelsAll(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	_ = rig.ctrl.EnableQuoting("mkt-1")
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))
	waitFor(t, time.Second, "双边挂单", func() bool { return rig.api.placeCount() == 2 })

	if err := rig.ctrl.DisableQuoting(context.Background(), "mkt-1"); err != nil {
		t.Fatalf("DisableQuoting 失败: %v", err)
	}
	if rig.api.cancelCount() != 2 {
		t.Errorf("关闭报价应撤掉两边挂单: cancelCalls = %d", rig.api.cancelCount())
	}

	// 关闭后的快照不再触发下单
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))
	time.Sleep(30 * time.Millisecond)
	if rig.api.placeCount() != 2 {
		t.Errorf("关闭报价后仍在下单: placeCalls = %d", rig.api.placeCount())
	}
}

func TestLostLiquidityPlainCancel(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	_ = rig.ctrl.EnableQuoting("mkt-1")
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))
	waitFor(t, time.Second, "双边挂单", func() bool { return rig.api.placeCount() == 2 })

	// Yes 前方流动性塌缩到 $5（低于默认阈值 $300），No 侧不变
	thin := snapshot("mkt-1",
		[]domain.PriceLevel{{Price: 0.50, Size: 10}},
		[]domain.PriceLevel{{Price: 0.52, Size: 10000}},
	)
	rig.ctrl.OnOrderBook(context.Background(), thin)

	waitFor(t, time.Second, "Yes 撤单", func() bool { return rig.api.cancelCount() == 1 })
	time.Sleep(30 * time.Millisecond)
	if rig.api.placeCount() != 2 {
		t.Errorf("普通撤单后不应立即重挂: placeCalls = %d", rig.api.placeCount())
	}
}

func TestAutoSpreadReprice(t *testing.T) {
	defaults := config.DefaultTokenSettings()
	defaults.AutoSpreadEnabled = true
	defaults.TargetLiquidityUSDT = 1000
	rig := newRig(t, defaults)

	_ = rig.ctrl.EnableQuoting("mkt-1")

	// 初始盘口：Yes 侧回溯得到 0.499（0.50×4000=$2000 ≥ $1000）
	book := snapshot("mkt-1",
		[]domain.PriceLevel{{Price: 0.50, Size: 4000}},
		[]domain.PriceLevel{{Price: 0.52, Size: 4000}},
	)
	rig.ctrl.OnOrderBook(context.Background(), book)
	waitFor(t, time.Second, "双边挂单", func() bool { return rig.api.placeCount() == 2 })

	// 买一档跳水到 0.45，总深度 $1050：新候选价 0.449 前方扣除我方
	// 0.499 的旧挂单（约 $100）后只剩 $950，跌破目标流动性，触发重定价。
	// 旧单撤掉后复核 $1050 ≥ $1000，按 0.449 重挂。
	moved := snapshot("mkt-1",
		[]domain.PriceLevel{{Price: 0.45, Size: 2334}},
		[]domain.PriceLevel{{Price: 0.52, Size: 4000}},
	)
	rig.ctrl.OnOrderBook(context.Background(), moved)

	waitFor(t, time.Second, "重定价撤单", func() bool { return rig.api.cancelCount() >= 1 })
	waitFor(t, time.Second, "按新价重挂", func() bool { return rig.api.placeCount() >= 3 })

	prices := rig.signer.signedPrices()
	got := prices[len(prices)-1]
	if got != 0.449 {
		t.Errorf("重定价后的下单价 = %v, 期望 0.449", got)
	}
}

func TestRepriceRejectsUnreachableTarget(t *testing.T) {
	defaults := config.DefaultTokenSettings()
	defaults.AutoSpreadEnabled = true
	defaults.TargetLiquidityUSDT = 1000
	rig := newRig(t, defaults)

	_ = rig.ctrl.EnableQuoting("mkt-1")

	book := snapshot("mkt-1",
		[]domain.PriceLevel{{Price: 0.50, Size: 4000}},
		[]domain.PriceLevel{{Price: 0.52, Size: 4000}},
	)
	rig.ctrl.OnOrderBook(context.Background(), book)
	waitFor(t, time.Second, "双边挂单", func() bool { return rig.api.placeCount() == 2 })

	// 全盘口流动性都不够目标：回溯价退化成最差档下移一个 tick，
	// 与旧价完全相同，重定价放弃，撤单后不重挂
	drained := snapshot("mkt-1",
		[]domain.PriceLevel{{Price: 0.50, Size: 10}},
		[]domain.PriceLevel{{Price: 0.52, Size: 4000}},
	)
	rig.ctrl.OnOrderBook(context.Background(), drained)

	waitFor(t, time.Second, "重定价撤单", func() bool { return rig.api.cancelCount() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if rig.api.placeCount() != 2 {
		t.Errorf("目标流动性不可达时不应重挂: placeCalls = %d", rig.api.placeCount())
	}
}

func TestUnknownMarketCommands(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	if err := rig.ctrl.EnableQuoting("nope"); err == nil {
		t.Errorf("未注册市场的 EnableQuoting 应报错")
	}
	if _, err := rig.ctrl.UpdateSettings("nope", config.SettingsUpdate{}); err == nil {
		t.Errorf("未注册市场的 UpdateSettings 应报错")
	}

	// 未注册市场的快照静默丢弃
	rig.ctrl.OnOrderBook(context.Background(), deepBook("other"))
	time.Sleep(20 * time.Millisecond)
	if rig.sink.count() != 0 {
		t.Errorf("未注册市场不应产生报价发布")
	}
}

func TestUpdateSettingsAppliedNextCycle(t *testing.T) {
	rig := newRig(t, config.DefaultTokenSettings())

	minLiq := 100000.0
	if _, err := rig.ctrl.UpdateSettings("mkt-1", config.SettingsUpdate{MinLiquidityUSDT: &minLiq}); err != nil {
		t.Fatalf("UpdateSettings 失败: %v", err)
	}

	_ = rig.ctrl.EnableQuoting("mkt-1")
	rig.ctrl.OnOrderBook(context.Background(), deepBook("mkt-1"))

	waitFor(t, time.Second, "报价发布", func() bool { return rig.sink.count() > 0 })
	time.Sleep(30 * time.Millisecond)
	if rig.api.placeCount() != 0 {
		t.Errorf("新阈值下不满足准入，不应下单: placeCalls = %d", rig.api.placeCount())
	}
	last, _ := rig.sink.last()
	if last.Quote == nil || last.Quote.MinLiquidity != minLiq {
		t.Errorf("报价应携带更新后的阈值")
	}
}
