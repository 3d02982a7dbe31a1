package domain

import (
	"fmt"
	"strings"
)

// Outcome 二元市场的结果方向（Yes/No，价格互补：yes + no = 1）
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// ParseOutcome 解析 outcome 字符串（大小写不敏感，支持 y/n 缩写）
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return OutcomeYes, nil
	case "no", "n":
		return OutcomeNo, nil
	default:
		return "", fmt.Errorf("未知的 outcome: %q", s)
	}
}

// Opposite 返回相反的 outcome
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Index 返回 outcome 在市场元数据里的常规下标（Yes=0, No=1）
func (o Outcome) Index() int {
	if o == OutcomeYes {
		return 0
	}
	return 1
}

func (o Outcome) String() string {
	return string(o)
}

// Upper 用于日志展示（YES/NO）
func (o Outcome) Upper() string {
	return strings.ToUpper(string(o))
}

// Outcomes 两个方向的固定遍历顺序
var Outcomes = [2]Outcome{OutcomeYes, OutcomeNo}
