package check

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	proxies "github.com/sinspired/socks5-check/proxy"
	"golang.org/x/net/proxy"
)

// 纯文本服务在浏览器 UA 下可能返回 HTML
const egressUserAgent = "curl/8.7.1"

// ClientFactory 为单个代理创建 HTTP 客户端
type ClientFactory func(ep proxies.Endpoint) (*http.Client, error)

// EgressResult 出口IP及成功请求的耗时
type EgressResult struct {
	IP      string
	Latency time.Duration
}

// EgressProbe 通过代理依次请求出口IP查询地址，第一个 200 响应即为结果
type EgressProbe struct {
	URLs      []string
	Timeout   time.Duration // 每个地址单独计时
	NewClient ClientFactory
}

// Probe 全部地址失败时返回 KindEgress 错误
func (p *EgressProbe) Probe(ctx context.Context, ep proxies.Endpoint) (EgressResult, error) {
	if len(p.URLs) == 0 {
		return EgressResult{}, newProbeError(KindEgress, "no egress endpoints configured", nil)
	}
	newClient := p.NewClient
	if newClient == nil {
		newClient = SOCKS5ClientFactory(nil)
	}
	client, err := newClient(ep)
	if err != nil {
		return EgressResult{}, newProbeError(KindEgress, fmt.Sprintf("create proxy client: %v", err), err)
	}
	defer client.CloseIdleConnections()

	var lastErr error
	for _, url := range p.URLs {
		if checkCtxDone(ctx) {
			lastErr = ctx.Err()
			break
		}
		res, err := p.fetch(ctx, client, url)
		if err == nil {
			return res, nil
		}
		slog.Debug(fmt.Sprintf("出口IP查询失败: %s via %s: %v", url, ep.Addr(), err))
		lastErr = err
	}

	reason := "all egress endpoints failed"
	if lastErr != nil {
		reason = fmt.Sprintf("%s: %v", reason, lastErr)
	}
	return EgressResult{}, newProbeError(KindEgress, reason, lastErr)
}

func (p *EgressProbe) fetch(ctx context.Context, client *http.Client, url string) (EgressResult, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return EgressResult{}, err
	}
	req.Header.Set("User-Agent", egressUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return EgressResult{}, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return EgressResult{}, fmt.Errorf("HTTP状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return EgressResult{}, fmt.Errorf("读取响应失败: %w", err)
	}

	return EgressResult{
		IP:      strings.TrimSpace(string(body)),
		Latency: latency,
	}, nil
}

// SOCKS5ClientFactory 使用 golang.org/x/net/proxy 建立经由代理的 HTTP 客户端
// forward 为连接代理本身所用的拨号器，nil 时直接拨号
func SOCKS5ClientFactory(forward Dialer) ClientFactory {
	if forward == nil {
		forward = &net.Dialer{}
	}
	return func(ep proxies.Endpoint) (*http.Client, error) {
		var auth *proxy.Auth
		if ep.HasAuth() {
			auth = &proxy.Auth{User: ep.Username, Password: ep.Password}
		}

		d, err := proxy.SOCKS5("tcp", ep.Addr(), auth, forwardDialer{forward})
		if err != nil {
			return nil, err
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer 不支持 DialContext")
		}

		transport := &http.Transport{
			Proxy:               nil,
			DialContext:         cd.DialContext,
			DisableKeepAlives:   true,
			TLSHandshakeTimeout: 5 * time.Second,
		}
		return &http.Client{
			Transport: transport,
			// 不跟随跳转，避免把跳转页内容当作IP
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}, nil
	}
}

// forwardDialer 适配 proxy.Dialer 与 proxy.ContextDialer
type forwardDialer struct {
	Dialer
}

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, addr)
}
