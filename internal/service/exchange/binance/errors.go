package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/adshao/go-binance/v2/common"
)

// Category 远程调用失败的分类, 决定重试策略
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryTransient 网络抖动, 限频, 5xx, 非法 JSON 等, 退避后重试
	CategoryTransient
	// CategoryConnectionLost 连接被断开, 重试前先做一次时间同步(仓位查询还会重建会话)
	CategoryConnectionLost
	// CategoryClockDrift 本地时间超出 recvWindow, 同步时间后重试
	CategoryClockDrift
	// CategoryStructural 返回了 HTML 而不是 JSON, 重试没有意义
	CategoryStructural
	// CategoryPermission 没有合约权限或 API key 不可用
	CategoryPermission
	// CategoryRejected 交易所明确拒绝了请求(参数, 过滤器, 未知订单...)
	CategoryRejected
	// CategoryParse 返回结构不符合预期
	CategoryParse
	// CategoryCanceled 调用方取消了 context
	CategoryCanceled
	// CategoryFatal 启动阶段无法建立会话
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "TRANSIENT"
	case CategoryConnectionLost:
		return "CONNECTION_LOST"
	case CategoryClockDrift:
		return "CLOCK_DRIFT"
	case CategoryStructural:
		return "STRUCTURAL"
	case CategoryPermission:
		return "PERMISSION"
	case CategoryRejected:
		return "REJECTED"
	case CategoryParse:
		return "PARSE"
	case CategoryCanceled:
		return "CANCELED"
	case CategoryFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Retryable 是否值得退避重试
func (c Category) Retryable() bool {
	switch c {
	case CategoryTransient, CategoryConnectionLost, CategoryClockDrift:
		return true
	default:
		return false
	}
}

var (
	// ErrFuturesUnavailable 会话已降级为现货, 合约相关操作不再发往交易所
	ErrFuturesUnavailable = errors.New("futures trading is not available for this session")
	// ErrInvalidRequest 请求参数在本地校验失败
	ErrInvalidRequest = errors.New("invalid request")
)

// GatewayError 网关对外返回的唯一错误类型
type GatewayError struct {
	Op       string
	Category Category
	Attempts int
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, e.Category, e.Attempts, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ParseError 交易所返回的字段无法转换成预期类型
type ParseError struct {
	Op    string
	Field string
	Value any
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: unexpected %s %v", e.Op, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: unexpected %s %v: %v", e.Op, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CategoryOf 取出错误分类, 非网关错误时现场分类
func CategoryOf(err error) Category {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Category
	}
	return Classify(err)
}

func IsTransient(err error) bool {
	return err != nil && CategoryOf(err).Retryable()
}

func IsStructural(err error) bool {
	return err != nil && CategoryOf(err) == CategoryStructural
}

func IsPermission(err error) bool {
	return err != nil && CategoryOf(err) == CategoryPermission
}

// https://developers.binance.com/docs/zh-CN/derivatives/usds-margined-futures/error-code
const (
	codeUnknown              = -1000
	codeDisconnected         = -1001
	codeTooManyRequests      = -1003
	codeUnexpectedResponse   = -1006
	codeTimeout              = -1007
	codeServerBusy           = -1008
	codeTooManyOrders        = -1015
	codeServiceShuttingDown  = -1016
	codeInvalidTimestamp     = -1021
	codeInvalidAPIKeyFormat  = -2014
	codeRejectedMbxKey       = -2015
	codeNoNeedToChangeMargin = -4046
)

// Classify 把远程客户端返回的错误归类.
// 优先使用结构化信息(APIError 错误码, JSON 语法错误, 系统调用错误);
// 只有都无法判断时才回退到 classifyMessage 的字符串匹配.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Category
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CategoryParse
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// 4xx/5xx 且响应体不是 JSON 时 go-binance 返回 Code=0, 原始响应体放在 Response
		if !apiErr.IsValid() && isHTMLPayload(strings.ToLower(string(apiErr.Response))) {
			return CategoryStructural
		}
		return classifyAPICode(apiErr.Code)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		if isHTMLPayload(strings.ToLower(syntaxErr.Error())) {
			return CategoryStructural
		}
		return CategoryTransient
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return CategoryConnectionLost
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	return classifyMessage(err.Error())
}

func classifyAPICode(code int64) Category {
	switch code {
	case 0, codeUnknown, codeDisconnected, codeTooManyRequests, codeUnexpectedResponse,
		codeTimeout, codeServerBusy, codeTooManyOrders, codeServiceShuttingDown:
		return CategoryTransient
	case codeInvalidTimestamp:
		return CategoryClockDrift
	case codeInvalidAPIKeyFormat, codeRejectedMbxKey:
		return CategoryPermission
	default:
		return CategoryRejected
	}
}

var (
	structuralMarkers = []string{"invalid character '<'", "but found <", "<html", "<!doctype"}
	lostMarkers       = []string{
		"connection reset", "connection aborted", "broken pipe", "remotedisconnected",
		"remote end closed", "server closed", "unexpected eof", "disconnected",
	}
	transientMarkers = []string{
		"unexpected end of json input", "invalid character", "expecting value",
		"timeout", "timed out", "connection refused", "code=0,", "http error",
		"too many requests", "bad gateway", "service unavailable", "gateway timeout",
	}
	permissionMarkers = []string{"permissions for action", "no futures permission"}
)

// classifyMessage 基于错误文本的兜底分类.
// 字符串匹配很脆弱, 所有规则都集中在这里, 方便以后替换.
func classifyMessage(msg string) Category {
	msg = strings.ToLower(msg)
	switch {
	case isHTMLPayload(msg):
		return CategoryStructural
	case containsAny(msg, permissionMarkers):
		return CategoryPermission
	case containsAny(msg, lostMarkers), msg == "eof", strings.HasSuffix(msg, ": eof"):
		return CategoryConnectionLost
	case containsAny(msg, transientMarkers):
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

func isHTMLPayload(msg string) bool {
	return containsAny(msg, structuralMarkers)
}

var malformedMarkers = []string{"unexpected end of json input", "invalid character", "expecting value"}

// isMalformedPayload 响应不是合法 JSON(HTML, 截断, 乱码).
// 重试策略把截断的 JSON 当作瞬时错误, 但探测合约时它和 HTML 一样说明合约接口不可用.
func isMalformedPayload(err error) bool {
	if err == nil {
		return false
	}
	if Classify(err) == CategoryStructural {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), malformedMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isAPICode(err error, code int64) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
