package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sinspired/socks5-check/config"
	proxies "github.com/sinspired/socks5-check/proxy"
)

// TCPProber TCP 连通性探测
type TCPProber interface {
	Probe(ctx context.Context, ep proxies.Endpoint) error
}

// UDPProber SOCKS5 UDP ASSOCIATE 探测
type UDPProber interface {
	Probe(ctx context.Context, ep proxies.Endpoint) error
}

// EgressProber 出口IP探测
type EgressProber interface {
	Probe(ctx context.Context, ep proxies.Endpoint) (EgressResult, error)
}

// GeoLocator 出口IP地理位置查询，不返回错误
type GeoLocator interface {
	Lookup(ip string) proxies.Location
}

const (
	errCancelled      = "cancelled"
	udpInferredNote   = "inferred from egress"
	defaultMaxRetries = 3
)

// Verifier 单个代理的多次重试检测
type Verifier struct {
	MaxRetries  int
	TCP         TCPProber
	UDP         UDPProber
	Egress      EgressProber
	Geo         GeoLocator
	UDPFallback bool // UDP 探测连不上代理时，以出口探测成功推断支持 UDP
}

// attempt 单轮检测的结果
type attempt struct {
	tcpOK     bool
	tcpErr    error
	udpOK     bool
	udpErr    error
	egress    EgressResult
	egressErr error
}

func (a *attempt) err() error {
	if a.tcpErr != nil {
		return a.tcpErr
	}
	return a.egressErr
}

// NewVerifier 根据配置组装探测器，dialer 在所有探测间共享
func NewVerifier(cfg *config.Config, geo GeoLocator) *Verifier {
	dialer := NewDialer(time.Duration(cfg.TCPTimeout)*time.Millisecond, cfg.DialRate)
	return &Verifier{
		MaxRetries: cfg.MaxRetries,
		TCP: &TCPProbe{
			Timeout: time.Duration(cfg.TCPTimeout) * time.Millisecond,
			Dialer:  dialer,
		},
		UDP: &UDPProbe{
			Timeout: time.Duration(cfg.HandshakeTimeout) * time.Millisecond,
			Dialer:  dialer,
		},
		Egress: &EgressProbe{
			URLs:      cfg.EgressURLs,
			Timeout:   time.Duration(cfg.EgressTimeout) * time.Millisecond,
			NewClient: SOCKS5ClientFactory(dialer),
		},
		Geo:         geo,
		UDPFallback: cfg.UDPFallback,
	}
}

// Check 检测一行代理，格式错误时不发起任何网络请求
func (v *Verifier) Check(ctx context.Context, raw string) Result {
	res := Result{Proxy: raw}

	ep, err := proxies.ParseEndpoint(raw)
	if err != nil {
		res.Error = proxies.ErrFormat.Error()
		return res
	}

	retries := v.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	var last attempt
	for i := range retries {
		if checkCtxDone(ctx) {
			if res.Attempts == 0 {
				res.Error = errCancelled
				return res
			}
			break
		}
		res.Attempts = i + 1

		last = v.runAttempt(ctx, ep)
		if last.tcpOK && last.egressErr == nil {
			return v.success(res, last)
		}
		slog.Debug(fmt.Sprintf("第 %d 次检测失败: %s: %v", i+1, ep.Addr(), last.err()))
	}

	res.TCP = last.tcpOK
	res.UDP = last.udpOK
	if err := last.err(); err != nil {
		res.Error = err.Error()
	}
	if last.udpErr != nil {
		res.UDPError = last.udpErr.Error()
	}
	return res
}

// runAttempt TCP 失败直接结束本轮；UDP 结果只记录，不影响出口探测
func (v *Verifier) runAttempt(ctx context.Context, ep proxies.Endpoint) attempt {
	var a attempt

	if err := v.TCP.Probe(ctx, ep); err != nil {
		a.tcpErr = err
		return a
	}
	a.tcpOK = true

	if v.UDP != nil {
		a.udpErr = v.UDP.Probe(ctx, ep)
		a.udpOK = a.udpErr == nil
	}

	a.egress, a.egressErr = v.Egress.Probe(ctx, ep)
	return a
}

func (v *Verifier) success(res Result, a attempt) Result {
	res.OK = true
	res.TCP = true
	res.UDP = a.udpOK
	res.IP = a.egress.IP
	res.Latency = a.egress.Latency.Milliseconds()
	if a.udpErr != nil {
		res.UDPError = a.udpErr.Error()
	}

	if !res.UDP && v.UDPFallback && udpUnreachable(a.udpErr) {
		res.UDP = true
		res.UDPError = udpInferredNote
	}

	loc := proxies.UnknownLocation
	if v.Geo != nil {
		loc = v.Geo.Lookup(res.IP)
	}
	res.Country = loc.Country
	res.Region = loc.Region
	return res
}

// udpUnreachable UDP 探测未能建立控制连接
func udpUnreachable(err error) bool {
	return IsKind(err, KindConnect)
}
