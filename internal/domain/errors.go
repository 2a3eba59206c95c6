package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 业务层错误类别
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidParameter
	KindInvalidLeverage
	KindInvalidMarginType
	KindInvalidState
	// KindFlipIncomplete 反手时平仓成功但开仓失败，账户停留在空仓
	KindFlipIncomplete
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindInvalidLeverage:
		return "InvalidLeverage"
	case KindInvalidMarginType:
		return "InvalidMarginType"
	case KindInvalidState:
		return "InvalidState"
	case KindFlipIncomplete:
		return "FlipIncomplete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error 业务层错误
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound 持仓/订单不存在
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// InvalidParameter 参数不合法
func InvalidParameter(format string, args ...any) *Error {
	return newError(KindInvalidParameter, format, args...)
}

// InvalidLeverage 杠杆超出范围
func InvalidLeverage(format string, args ...any) *Error {
	return newError(KindInvalidLeverage, format, args...)
}

// InvalidMarginType 保证金模式不合法
func InvalidMarginType(format string, args ...any) *Error {
	return newError(KindInvalidMarginType, format, args...)
}

// InvalidState 无法从当前状态推导出动作
func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

// FlipIncomplete 包装反手第二腿的失败原因
func FlipIncomplete(err error, format string, args ...any) *Error {
	e := newError(KindFlipIncomplete, format, args...)
	e.Err = err
	return e
}

// KindOf 取错误链中的业务错误类别，没有则返回 0
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// IsKind 判断是否为指定类别
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
