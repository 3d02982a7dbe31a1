package exchange

import (
	"testing"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

func TestSnapshotFromJSONSortsLevels(t *testing.T) {
	book := types.OrderbookJSON{
		Bids: [][]float64{{0.48, 100}, {0.52, 50}, {0.50, 200}},
		Asks: [][]float64{{0.60, 10}, {0.55, 20}},
	}
	snap := SnapshotFromJSON("mkt-1", book)

	if snap.MarketID != "mkt-1" {
		t.Errorf("MarketID = %s", snap.MarketID)
	}
	if best, _ := snap.BestBid(); best != 0.52 {
		t.Errorf("BestBid = %v, 期望 0.52", best)
	}
	if best, _ := snap.BestAsk(); best != 0.55 {
		t.Errorf("BestAsk = %v, 期望 0.55", best)
	}
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].Price > snap.Bids[i-1].Price {
			t.Fatalf("bids 未按降序排列: %v", snap.Bids)
		}
	}
}

func TestSnapshotFromJSONSkipsMalformedPairs(t *testing.T) {
	book := types.OrderbookJSON{
		Bids: [][]float64{{0.50, 100}, {0.49}},
		Asks: [][]float64{{0.52, 100}},
	}
	snap := SnapshotFromJSON("mkt-1", book)
	if len(snap.Bids) != 1 {
		t.Errorf("残缺数对应被跳过: bids=%d", len(snap.Bids))
	}
}

func TestMarketInfoFromJSON(t *testing.T) {
	m := &types.MarketJSON{
		ID:               "mkt-1",
		Title:            "Test market",
		DecimalPrecision: 3,
		FeeRateBps:       200,
		IsYieldBearing:   true,
		Outcomes: []types.OutcomeJSON{
			{Name: "Yes", OnChainID: "111"},
			{Name: "No", OnChainID: "222"},
		},
	}
	info := MarketInfoFromJSON(m)
	if info.TickSize() != 0.001 {
		t.Errorf("TickSize = %v, 期望 0.001", info.TickSize())
	}
	table, err := info.BuildTokenTable()
	if err != nil {
		t.Fatalf("BuildTokenTable 失败: %v", err)
	}
	if table["yes"] != "111" || table["no"] != "222" {
		t.Errorf("token 表错误: %v", table)
	}
}
