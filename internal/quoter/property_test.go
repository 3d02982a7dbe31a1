package quoter

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
)

type bookInput struct {
	BestBid float64
	Gap     float64
	Sizes   [4]float64
}

func (bookInput) Generate(r *rand.Rand, _ int) reflect.Value {
	in := bookInput{
		BestBid: 0.05 + r.Float64()*0.85,
		Gap:     0.001 + r.Float64()*0.05,
	}
	for i := range in.Sizes {
		in.Sizes[i] = 1 + r.Float64()*5000
	}
	return reflect.ValueOf(in)
}

func (in bookInput) book() *domain.OrderBookSnapshot {
	bestAsk := math.Min(in.BestBid+in.Gap, 0.998)
	return testBook(
		[]domain.PriceLevel{
			{Price: in.BestBid, Size: in.Sizes[0]},
			{Price: math.Max(in.BestBid-0.02, 0.002), Size: in.Sizes[1]},
		},
		[]domain.PriceLevel{
			{Price: bestAsk, Size: in.Sizes[2]},
			{Price: math.Min(bestAsk+0.02, 0.999), Size: in.Sizes[3]},
		},
	)
}

// 对任何非空盘口，midYes + midNo == 1
func TestPropertyMidPricesSumToOne(t *testing.T) {
	property := func(in bookInput) bool {
		q, err := Calculate(in.book(), usdtSettings(100), 3, nil)
		if err != nil {
			return true
		}
		if math.Abs(q.MidYes+q.MidNo-1.0) > 1e-9 {
			t.Logf("midYes=%v midNo=%v 之和偏离 1", q.MidYes, q.MidNo)
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

// 固定价差模式下买价不高于 mid
func TestPropertyFixedSpreadBelowMid(t *testing.T) {
	property := func(in bookInput, spreadSeed uint8) bool {
		settings := usdtSettings(100)
		settings.SpreadPercent = 0.5 + float64(spreadSeed%20)
		q, err := Calculate(in.book(), settings, 3, nil)
		if err != nil {
			return true
		}
		// 取整最多把价格抬高半个 tick
		halfTick := 0.0005 + 1e-9
		if q.Yes.Price > q.MidYes+halfTick || q.No.Price > q.MidNo+halfTick {
			t.Logf("买价高于 mid: yes=%v/%v no=%v/%v", q.Yes.Price, q.MidYes, q.No.Price, q.MidNo)
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

// 任何 (price, shares) 输出都满足 1 美元最小名义金额
func TestPropertyMinNotional(t *testing.T) {
	property := func(in bookInput, usdtSeed uint16) bool {
		settings := usdtSettings(1 + float64(usdtSeed%500))
		q, err := Calculate(in.book(), settings, 3, nil)
		if err != nil {
			return true
		}
		const eps = 1e-6
		if q.Yes.Price*q.Yes.Shares < MinOrderValueUSD-eps {
			t.Logf("Yes 名义金额不足: price=%v shares=%v", q.Yes.Price, q.Yes.Shares)
			return false
		}
		if q.No.Price*q.No.Shares < MinOrderValueUSD-eps {
			t.Logf("No 名义金额不足: price=%v shares=%v", q.No.Price, q.No.Shares)
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

// 报价始终落在合法价格区间内
func TestPropertyPriceBounds(t *testing.T) {
	property := func(in bookInput, auto bool) bool {
		settings := usdtSettings(100)
		settings.AutoSpreadEnabled = auto
		q, err := Calculate(in.book(), settings, 3, nil)
		if err != nil {
			return true
		}
		for _, p := range []float64{q.Yes.Price, q.No.Price} {
			if p < MinOrderPrice-1e-12 || p > MaxOrderPrice+1e-12 {
				t.Logf("价格越界: %v", p)
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}
