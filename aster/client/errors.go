package client

import (
	"errors"
	"fmt"
)

// ErrorKind 交易所调用失败的分类
type ErrorKind int

const (
	// KindRateLimited HTTP 429，可重试
	KindRateLimited ErrorKind = iota + 1
	// KindServer HTTP 5xx，可重试
	KindServer
	// KindTimeout 单次请求超时，可重试
	KindTimeout
	// KindTransport 连接/传输层错误，可重试
	KindTransport
	// KindAPI 交易所业务拒绝（4xx 或 2xx 内嵌 code/msg），不重试
	KindAPI
	// KindMalformed 响应体不是合法 JSON 或与期望结构不符，不重试
	KindMalformed
	// KindInvalidRequest 调用方参数错误（非法 method、签名失败等），不重试
	KindInvalidRequest
	// KindCanceled 调用方 context 被取消，不重试
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api_error"
	case KindMalformed:
		return "malformed_response"
	case KindInvalidRequest:
		return "invalid_request"
	case KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable 是否属于瞬时错误
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServer, KindTimeout, KindTransport:
		return true
	}
	return false
}

// Error 交易所调用的唯一错误类型
type Error struct {
	Kind     ErrorKind
	Method   string
	Endpoint string
	Status   int    // HTTP 状态码，传输层错误时为 0
	Code     int    // 交易所错误码
	Msg      string // 交易所错误信息或原始响应体
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("aster %s %s: %s", e.Method, e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Code != 0 || e.Msg != "" {
		msg += fmt.Sprintf(": code=%d msg=%s", e.Code, e.Msg)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable 是否可重试
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// AsError 提取 *Error
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKind 判断错误链中是否有指定类型的 *Error
func IsKind(err error, kind ErrorKind) bool {
	ce, ok := AsError(err)
	return ok && ce.Kind == kind
}
