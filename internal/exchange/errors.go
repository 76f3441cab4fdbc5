package exchange

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrMarketNotFound 表示交易对不存在。
	ErrMarketNotFound = errors.New("exchange: market not found")
	// ErrLotRulesMissing 表示交易对缺少数量规则。
	ErrLotRulesMissing = errors.New("exchange: lot size rules missing")
	// ErrCircuitOpen 表示熔断器打开，调用被直接拒绝。
	ErrCircuitOpen = errors.New("exchange: circuit breaker open")
	// ErrUnsupportedExchange 表示配置的交易所未注册。
	ErrUnsupportedExchange = errors.New("exchange: unsupported exchange")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
