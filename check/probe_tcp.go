package check

import (
	"context"
	"net"
	"time"

	proxies "github.com/sinspired/socks5-check/proxy"
)

// TCPProbe 只建立并立即关闭 TCP 连接，不做重试
type TCPProbe struct {
	Timeout time.Duration
	Dialer  Dialer
}

// Probe 成功返回 nil，失败返回 KindConnect 错误
func (p *TCPProbe) Probe(ctx context.Context, ep proxies.Endpoint) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return newProbeError(KindConnect, dialReason(err), err)
	}
	_ = conn.Close()
	return nil
}
