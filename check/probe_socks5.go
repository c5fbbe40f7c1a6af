package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	proxies "github.com/sinspired/socks5-check/proxy"
)

// SOCKS5 协议常量 (RFC 1928 / RFC 1929)
const (
	socksVersion      = 0x05
	authVersion       = 0x01
	methodNoAuth      = 0x00
	methodUserPass    = 0x02
	cmdUDPAssociate   = 0x03
	atypIPv4          = 0x01
	replySucceeded    = 0x00
	minAssociateReply = 6
	maxAssociateReply = 10
)

const udpTimeoutReason = "UDP detection timeout"

// udpAssociateRequest VER CMD RSV ATYP DST.ADDR(0.0.0.0) DST.PORT(0)
var udpAssociateRequest = []byte{socksVersion, cmdUDPAssociate, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}

// replyReasons UDP ASSOCIATE 非零响应码对应的原因
var replyReasons = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// replyReason 未收录的响应码返回 "unknown error code: n"
func replyReason(code byte) string {
	if reason, ok := replyReasons[code]; ok {
		return reason
	}
	return fmt.Sprintf("unknown error code: %d", code)
}

// UDPProbe 独立建立一条 TCP 控制连接，完成方法协商、可选认证并发送 UDP ASSOCIATE
type UDPProbe struct {
	Timeout time.Duration // 连接及每一步读写的超时
	Dialer  Dialer
}

// Probe UDP ASSOCIATE 成功返回 nil
func (p *UDPProbe) Probe(ctx context.Context, ep proxies.Endpoint) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := dialer.DialContext(dialCtx, "tcp", ep.Addr())
	cancel()
	if err != nil {
		switch {
		case isTimeout(err):
			return newProbeError(KindConnect, udpTimeoutReason, err)
		case isRefused(err):
			return newProbeError(KindConnect, "connection refused", err)
		default:
			return newProbeError(KindConnect, fmt.Sprintf("UDP detection error: %v", err), err)
		}
	}
	defer conn.Close()

	// 整体取消时立即中断阻塞的读写
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	s := &socksConn{conn: conn, timeout: timeout}

	if err := s.negotiate(ep); err != nil {
		return err
	}
	return s.associate()
}

// socksConn 每一步读写前重置超时
type socksConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (s *socksConn) write(b []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := s.conn.Write(b); err != nil {
		return s.ioError(err)
	}
	return nil
}

func (s *socksConn) ioError(err error) error {
	switch {
	case isTimeout(err):
		return newProbeError(KindHandshake, udpTimeoutReason, err)
	case isRefused(err):
		return newProbeError(KindHandshake, "connection refused", err)
	default:
		return newProbeError(KindHandshake, fmt.Sprintf("UDP detection error: %v", err), err)
	}
}

// negotiate 方法协商，必要时进行用户名密码认证
func (s *socksConn) negotiate(ep proxies.Endpoint) error {
	greeting := []byte{socksVersion, 0x01, methodNoAuth}
	if ep.HasAuth() {
		greeting = []byte{socksVersion, 0x02, methodNoAuth, methodUserPass}
	}
	if err := s.write(greeting); err != nil {
		return err
	}

	resp := make([]byte, 2)
	n, err := s.readReply(resp, 2)
	if err != nil {
		return err
	}
	if n != 2 || resp[0] != socksVersion {
		return newProbeError(KindHandshake, "handshake failed", nil)
	}

	switch resp[1] {
	case methodNoAuth:
		return nil
	case methodUserPass:
		if !ep.HasAuth() {
			return newProbeError(KindHandshake, "username/password authentication required", nil)
		}
		return s.authenticate(ep.Username, ep.Password)
	default:
		return newProbeError(KindHandshake, fmt.Sprintf("unsupported authentication method: %d", resp[1]), nil)
	}
}

// authenticate RFC 1929: VER ULEN UNAME PLEN PASSWD
func (s *socksConn) authenticate(user, pass string) error {
	if len(user) > 255 || len(pass) > 255 {
		return newProbeError(KindHandshake, "username or password too long", nil)
	}
	req := make([]byte, 0, 3+len(user)+len(pass))
	req = append(req, authVersion, byte(len(user)))
	req = append(req, user...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if err := s.write(req); err != nil {
		return err
	}

	resp := make([]byte, 2)
	n, err := s.readReply(resp, 2)
	if err != nil {
		return err
	}
	if n != 2 || resp[1] != 0x00 {
		return newProbeError(KindHandshake, "authentication failed", nil)
	}
	return nil
}

// associate 发送 UDP ASSOCIATE 并解析响应
func (s *socksConn) associate() error {
	if err := s.write(udpAssociateRequest); err != nil {
		return err
	}

	resp := make([]byte, maxAssociateReply)
	n, err := s.readReply(resp, minAssociateReply)
	if err != nil {
		return err
	}
	if n < minAssociateReply || resp[0] != socksVersion {
		return newProbeError(KindHandshake, "invalid response", nil)
	}

	if code := resp[1]; code != replySucceeded {
		return newProbeError(KindUDPUnsupported, replyReason(code), nil)
	}
	return nil
}

// readReply 读取 atLeast 到 len(b) 字节
// 一个字节都没读到就超时视为超时错误；已读到部分数据时返回实际长度，由调用方判定为非法响应
func (s *socksConn) readReply(b []byte, atLeast int) (int, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	n, err := io.ReadAtLeast(s.conn, b, atLeast)
	if err == nil || n > 0 {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return 0, s.ioError(err)
}
