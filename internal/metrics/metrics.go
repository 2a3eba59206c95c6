package metrics

import "expvar"

var (
	// 交易所调用：每次 HTTP 尝试计一次；重试与最终失败按错误类别分桶
	ExchangeAttempts = expvar.NewInt("exchange_attempts")
	ExchangeRetries  = expvar.NewMap("exchange_retries")
	ExchangeFailures = expvar.NewMap("exchange_failures")

	// WebhookOutcomes 成功执行的 webhook，键为 signal.<action> / strategy.<action>
	WebhookOutcomes = expvar.NewMap("webhook_outcomes")
	// FlipIncomplete 反手平仓成功但开仓失败的次数
	FlipIncomplete = expvar.NewInt("flip_incomplete")
	// ErrorResponses 按错误类型统计的 HTTP 错误响应
	ErrorResponses = expvar.NewMap("error_responses")
)

// PublishFunc 注册一个读取时计算的指标，同名已存在时忽略
func PublishFunc(name string, f func() any) {
	if expvar.Get(name) != nil {
		return
	}
	expvar.Publish(name, expvar.Func(f))
}
