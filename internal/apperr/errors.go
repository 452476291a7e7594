// Package apperr 定义网关的错误分类. 每个错误只作用于触发它的请求.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindInternal     Kind = iota
	KindConnectivity      // 没有钱包会话或合约句柄
	KindValidation        // 本地校验失败, 未发出任何调用
	KindRejected          // 签名或提交被拒绝
	KindReverted          // 合约回滚, Reason 为原始回滚原因
	KindReadFailure       // 读取合约失败, 可重试
	KindTimeout           // 等待交易上链超时
	KindNotFound          // 项目或序号不存在
)

var kindNames = map[Kind]string{
	KindInternal:     "internal",
	KindConnectivity: "connectivity",
	KindValidation:   "validation",
	KindRejected:     "rejected",
	KindReverted:     "reverted",
	KindReadFailure:  "read_failure",
	KindTimeout:      "timeout",
	KindNotFound:     "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error 带分类的错误
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable 读失败与连接错误可由用户重试
func (e *Error) Retryable() bool {
	return e.Kind == KindReadFailure || e.Kind == KindConnectivity || e.Kind == KindTimeout
}

// New 创建分类错误
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap 包装底层错误
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation 快捷构造校验错误
func Validation(op, format string, args ...interface{}) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

// KindOf 取错误分类, 非 *Error 视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ReasonOf 面向用户的原因文本, 回滚原因原样返回
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus 分类对应的 HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindConnectivity:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindRejected:
		return http.StatusConflict
	case KindReverted:
		return http.StatusUnprocessableEntity
	case KindReadFailure:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
