// Package errorx 定义带业务错误码的错误类型
// HTTP 层把它翻译成 {code,msg,data}，实时网关把它翻译成 nack 事件里的字符串码
package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 支持 %w 包装底层错误，能被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 错误消息
	cause error  // 被包装的底层错误
}

// Error 存在底层错误时返回 "消息: 底层错误"，否则仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeNotFound, "用户不存在")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// Wrapf 包装底层错误，支持格式化消息
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...), cause: err}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回 CodeServerBusy
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// 业务状态码常量定义
const (
	CodeSuccess         = 1000 // 成功
	CodeInvalidParam    = 1001 // 请求参数错误
	CodeUserExist       = 1002 // 用户已存在
	CodeUserNotExist    = 1003 // 用户不存在
	CodeInvalidPassword = 1004 // 密码错误
	CodeServerBusy      = 1005 // 服务繁忙
	CodeUnauthorized    = 1006 // 未授权/认证失败
	CodeForbidden       = 1007 // 无权访问（非房间成员）
	CodeNotFound        = 1008 // 资源不存在
	CodeConflict        = 1009 // 唯一键冲突
	CodeDBError         = 1010 // 数据库错误
	CodeCacheError      = 1011 // 缓存错误
	CodeTooManyRequests = 1012 // 请求过于频繁
)

// 预定义常用错误实例
var (
	ErrInvalidParam    = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy      = New(CodeServerBusy, "服务繁忙")
	ErrForbidden       = New(CodeForbidden, "不是该房间的成员")
	ErrTooManyRequests = New(CodeTooManyRequests, "请求过于频繁，请稍后再试")
)

// IsNotFound 检查错误是否为"未找到"类型
func IsNotFound(err error) bool {
	var codeErr *CodeError
	return errors.As(err, &codeErr) && codeErr.Code == CodeNotFound
}

// IsConflict 检查错误是否为唯一键冲突
func IsConflict(err error) bool {
	var codeErr *CodeError
	return errors.As(err, &codeErr) && codeErr.Code == CodeConflict
}

// 实时协议里 nack/error 事件使用的字符串错误码
const (
	WireInvalidPayload = "invalid_payload"
	WireForbidden      = "forbidden"
	WireNotFound       = "not_found"
	WireUnauthorized   = "unauthorized"
	WireInternal       = "internal"
)

// WireCode 把业务错误码映射为实时协议的字符串错误码
func WireCode(err error) string {
	switch GetCode(err) {
	case CodeInvalidParam:
		return WireInvalidPayload
	case CodeForbidden:
		return WireForbidden
	case CodeNotFound, CodeUserNotExist:
		return WireNotFound
	case CodeUnauthorized:
		return WireUnauthorized
	default:
		return WireInternal
	}
}
