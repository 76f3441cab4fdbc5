package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case fmt.Stringer:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
			return f
		}
	}
	return 0
}

// lotRulesFromInfo 解析 Binance 原始市场信息中的 LOT_SIZE 过滤器。
func lotRulesFromInfo(info map[string]interface{}) (LotRules, bool) {
	filters, ok := info["filters"].([]interface{})
	if !ok {
		return LotRules{}, false
	}
	for _, raw := range filters {
		filter, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if kind, _ := filter["filterType"].(string); kind != "LOT_SIZE" {
			continue
		}
		return LotRules{
			MinQty:   parseNumeric(filter["minQty"]),
			StepSize: parseNumeric(filter["stepSize"]),
		}, true
	}
	return LotRules{}, false
}

// splitSymbol 拆分 BASE/QUOTE 形式的交易对，合约交易对（含 ":"）返回 false。
func splitSymbol(symbol string) (string, string, bool) {
	if strings.Contains(symbol, ":") {
		return "", "", false
	}
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
