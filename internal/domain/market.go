package domain

import (
	"fmt"
	"strings"
)

// MarketOutcome 市场元数据里的一个 outcome（名称 + 链上 token ID）
type MarketOutcome struct {
	Name      string
	OnChainID string
}

// MarketInfo 市场元数据（控制器启动时获取一次，运行期间不再刷新）
type MarketInfo struct {
	ID               string
	Title            string
	Status           string
	DecimalPrecision int  // 价格精度：2 = 整分，3 = 0.1 分
	FeeRateBps       int  // 手续费（基点）
	IsNegRisk        bool
	IsYieldBearing   bool
	Outcomes         []MarketOutcome
}

// TickSize 对应价格精度的最小报价单位
func (m *MarketInfo) TickSize() float64 {
	if m.DecimalPrecision == 2 {
		return 0.01
	}
	return 0.001
}

// BuildTokenTable 构建 outcome -> 链上 token ID 的查表。
//
// 按名称匹配（大小写不敏感，支持 Yes/Y、No/N 变体），匹配不到时回退到
// 位置约定（Yes=0, No=1）。元数据缺失或 outcome 少于两个时返回错误，
// 这是配置错误，不做重试。
func (m *MarketInfo) BuildTokenTable() (map[Outcome]string, error) {
	if m == nil {
		return nil, fmt.Errorf("market_info 缺失")
	}
	if len(m.Outcomes) < 2 {
		return nil, fmt.Errorf("市场 %s 的 outcomes 不足: %d", m.ID, len(m.Outcomes))
	}

	table := make(map[Outcome]string, 2)
	for _, want := range Outcomes {
		var found *MarketOutcome
		for i := range m.Outcomes {
			name := strings.ToLower(m.Outcomes[i].Name)
			if name == string(want) || (want == OutcomeYes && name == "y") || (want == OutcomeNo && name == "n") {
				found = &m.Outcomes[i]
				break
			}
		}
		// 名称匹配失败时按下标回退
		if found == nil {
			found = &m.Outcomes[want.Index()]
		}
		if found.OnChainID == "" {
			return nil, fmt.Errorf("市场 %s 的 outcome %q 缺少链上 token ID", m.ID, found.Name)
		}
		table[want] = found.OnChainID
	}
	return table, nil
}
