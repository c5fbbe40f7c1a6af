package check

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// ErrorKind 检测失败的分类
type ErrorKind int

const (
	KindFormat         ErrorKind = iota // 输入格式错误，不重试
	KindConnect                         // TCP 连接失败
	KindHandshake                       // SOCKS5 握手/认证失败或响应非法
	KindUDPUnsupported                  // 握手正常但 UDP ASSOCIATE 被拒绝
	KindEgress                          // 所有出口IP查询地址均失败
)

func (k ErrorKind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindConnect:
		return "connect"
	case KindHandshake:
		return "handshake"
	case KindUDPUnsupported:
		return "udp-unsupported"
	case KindEgress:
		return "egress"
	default:
		return "unknown"
	}
}

// ProbeError 各探测步骤返回的错误，Error() 只返回简短原因
type ProbeError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	return e.Reason
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

func newProbeError(kind ErrorKind, reason string, err error) *ProbeError {
	return &ProbeError{Kind: kind, Reason: reason, Err: err}
}

// IsKind 判断错误链中是否包含指定分类的 ProbeError
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// isTimeout 统一判断 context 超时与网络超时
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// dialReason 将拨号错误转换为简短描述
func dialReason(err error) string {
	switch {
	case isTimeout(err):
		return "connection timeout"
	case isRefused(err):
		return "connection refused"
	case errors.Is(err, syscall.ENETUNREACH):
		return "network unreachable"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "host unreachable"
	default:
		return err.Error()
	}
}
