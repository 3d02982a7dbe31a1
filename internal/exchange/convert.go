package exchange

import (
	"sort"
	"time"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/internal/domain"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

// SnapshotFromJSON 把 API/WS 的盘口数据转成领域快照。
// 服务端通常已排序，这里仍强制 bids 降序 / asks 升序，快照不变式不依赖外部。
func SnapshotFromJSON(marketID string, book types.OrderbookJSON) *domain.OrderBookSnapshot {
	snapshot := &domain.OrderBookSnapshot{
		MarketID:   marketID,
		Bids:       levelsFromPairs(book.Bids),
		Asks:       levelsFromPairs(book.Asks),
		ReceivedAt: time.Now(),
	}
	sort.Slice(snapshot.Bids, func(i, j int) bool { return snapshot.Bids[i].Price > snapshot.Bids[j].Price })
	sort.Slice(snapshot.Asks, func(i, j int) bool { return snapshot.Asks[i].Price < snapshot.Asks[j].Price })
	return snapshot
}

func levelsFromPairs(pairs [][]float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: p[0], Size: p[1]})
	}
	return levels
}

// MarketInfoFromJSON 把市场元数据转成领域类型
func MarketInfoFromJSON(m *types.MarketJSON) *domain.MarketInfo {
	outcomes := make([]domain.MarketOutcome, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		outcomes = append(outcomes, domain.MarketOutcome{
			Name:      o.Name,
			OnChainID: o.OnChainID,
		})
	}
	return &domain.MarketInfo{
		ID:               m.ID,
		Title:            m.Title,
		Status:           m.Status,
		DecimalPrecision: m.DecimalPrecision,
		FeeRateBps:       m.FeeRateBps,
		IsNegRisk:        m.IsNegRisk,
		IsYieldBearing:   m.IsYieldBearing,
		Outcomes:         outcomes,
	}
}
