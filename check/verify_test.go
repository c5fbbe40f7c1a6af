package check

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	proxies "github.com/sinspired/socks5-check/proxy"
)

type fakeTCP struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTCP) Probe(context.Context, proxies.Endpoint) error {
	f.calls.Add(1)
	return f.err
}

type fakeUDP struct {
	calls atomic.Int32
	err   error
}

func (f *fakeUDP) Probe(context.Context, proxies.Endpoint) error {
	f.calls.Add(1)
	return f.err
}

// fakeEgress 前 failures 次失败，之后返回 ip
type fakeEgress struct {
	calls    atomic.Int32
	failures int32
	ip       string
}

func (f *fakeEgress) Probe(context.Context, proxies.Endpoint) (EgressResult, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return EgressResult{}, newProbeError(KindEgress, "all egress endpoints failed", nil)
	}
	return EgressResult{IP: f.ip, Latency: time.Duration(n) * time.Millisecond}, nil
}

type fakeGeo struct {
	calls atomic.Int32
}

func (f *fakeGeo) Lookup(ip string) proxies.Location {
	f.calls.Add(1)
	return proxies.Location{Country: "日本", Region: "东京都"}
}

func newFakeVerifier(tcpErr, udpErr error, egressFailures int32) (*Verifier, *fakeTCP, *fakeUDP, *fakeEgress, *fakeGeo) {
	tcp := &fakeTCP{err: tcpErr}
	udp := &fakeUDP{err: udpErr}
	eg := &fakeEgress{failures: egressFailures, ip: "203.0.113.5"}
	geo := &fakeGeo{}
	return &Verifier{MaxRetries: 3, TCP: tcp, UDP: udp, Egress: eg, Geo: geo}, tcp, udp, eg, geo
}

func TestVerifierTCPAlwaysFails(t *testing.T) {
	v, tcp, udp, eg, geo := newFakeVerifier(newProbeError(KindConnect, "connection refused", nil), nil, 0)

	res := v.Check(context.Background(), "10.0.0.1:1080")
	if res.OK || res.TCP || res.UDP {
		t.Fatalf("期望失败且 TCP/UDP 为 false: %+v", res)
	}
	if res.Attempts != 3 || tcp.calls.Load() != 3 {
		t.Errorf("尝试次数 %d, TCP 调用 %d, 期望均为 3", res.Attempts, tcp.calls.Load())
	}
	if udp.calls.Load() != 0 || eg.calls.Load() != 0 || geo.calls.Load() != 0 {
		t.Error("TCP 失败时不应继续后续探测")
	}
	if res.Error != "connection refused" {
		t.Errorf("错误 %q", res.Error)
	}
	if res.Latency != 0 {
		t.Errorf("失败时延迟应为 0, 实际 %d", res.Latency)
	}
}

func TestVerifierUDPUnsupportedStillUsable(t *testing.T) {
	udpErr := newProbeError(KindUDPUnsupported, replyReason(0x02), nil)
	v, _, _, _, geo := newFakeVerifier(nil, udpErr, 0)

	res := v.Check(context.Background(), "10.0.0.1|1080|u|p")
	if !res.OK || !res.TCP || res.UDP {
		t.Fatalf("期望可用但不支持 UDP: %+v", res)
	}
	if res.UDPError != "connection not allowed by ruleset" {
		t.Errorf("UDP 错误 %q", res.UDPError)
	}
	if res.IP != "203.0.113.5" || res.Country != "日本" || res.Region != "东京都" {
		t.Errorf("出口信息错误: %+v", res)
	}
	if geo.calls.Load() != 1 {
		t.Errorf("地理位置查询 %d 次, 期望 1 次", geo.calls.Load())
	}
	if res.Attempts != 1 {
		t.Errorf("尝试次数 %d, 期望 1", res.Attempts)
	}
}

func TestVerifierEgressRecovers(t *testing.T) {
	v, tcp, udp, eg, geo := newFakeVerifier(nil, nil, 2)

	res := v.Check(context.Background(), "10.0.0.1:1080")
	if !res.OK || !res.UDP {
		t.Fatalf("第三次应成功: %+v", res)
	}
	if res.Attempts != 3 || tcp.calls.Load() != 3 || udp.calls.Load() != 3 || eg.calls.Load() != 3 {
		t.Errorf("调用次数不符: attempts=%d tcp=%d udp=%d egress=%d",
			res.Attempts, tcp.calls.Load(), udp.calls.Load(), eg.calls.Load())
	}
	if geo.calls.Load() != 1 {
		t.Errorf("地理位置查询 %d 次, 期望 1 次", geo.calls.Load())
	}
	if res.Latency != 3 {
		t.Errorf("延迟应取成功那次请求, 实际 %d", res.Latency)
	}
	if res.Error != "" {
		t.Errorf("成功时不应有错误: %q", res.Error)
	}
}

func TestVerifierEgressExhausted(t *testing.T) {
	udpErr := newProbeError(KindHandshake, "invalid response", nil)
	v, _, _, _, geo := newFakeVerifier(nil, udpErr, 10)

	res := v.Check(context.Background(), "10.0.0.1:1080")
	if res.OK || !res.TCP || res.UDP {
		t.Fatalf("期望 TCP 可达但不可用: %+v", res)
	}
	if res.Error != "all egress endpoints failed" || res.UDPError != "invalid response" {
		t.Errorf("错误 %q / %q", res.Error, res.UDPError)
	}
	if geo.calls.Load() != 0 {
		t.Error("失败时不应查询地理位置")
	}
}

func TestVerifierFormatErrorNoIO(t *testing.T) {
	v, tcp, udp, eg, geo := newFakeVerifier(nil, nil, 0)

	for _, line := range []string{"1.2.3.4", "a:b:c", "1.2.3.4:1080:u:p:x"} {
		res := v.Check(context.Background(), line)
		if res.OK || res.Error != "format error" || res.Attempts != 0 {
			t.Errorf("%q: %+v", line, res)
		}
	}
	if tcp.calls.Load()+udp.calls.Load()+eg.calls.Load()+geo.calls.Load() != 0 {
		t.Error("格式错误不应发起任何探测")
	}
}

func TestVerifierDeterministic(t *testing.T) {
	check := func() Result {
		v, _, _, _, _ := newFakeVerifier(nil, nil, 1)
		return v.Check(context.Background(), "10.0.0.1:1080:u:p")
	}
	a, b := check(), check()
	a.Latency, b.Latency = 0, 0
	if a != b {
		t.Errorf("相同输入结果不一致:\n%+v\n%+v", a, b)
	}
}

func TestVerifierUDPFallback(t *testing.T) {
	udpErr := newProbeError(KindConnect, udpTimeoutReason, context.DeadlineExceeded)
	v, _, _, _, _ := newFakeVerifier(nil, udpErr, 0)
	v.UDPFallback = true

	res := v.Check(context.Background(), "10.0.0.1:1080")
	if !res.OK || !res.UDP || res.UDPError != udpInferredNote {
		t.Fatalf("期望推断支持 UDP: %+v", res)
	}

	// 被明确拒绝时不推断
	v, _, _, _, _ = newFakeVerifier(nil, newProbeError(KindUDPUnsupported, "command not supported", nil), 0)
	v.UDPFallback = true
	res = v.Check(context.Background(), "10.0.0.1:1080")
	if res.UDP {
		t.Errorf("UDP ASSOCIATE 被拒绝时不应推断支持: %+v", res)
	}
}

func TestVerifierCancelled(t *testing.T) {
	v, tcp, _, _, _ := newFakeVerifier(nil, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := v.Check(ctx, "10.0.0.1:1080")
	if res.Error != errCancelled || res.Attempts != 0 || tcp.calls.Load() != 0 {
		t.Errorf("已取消时不应检测: %+v", res)
	}
}

func TestProbeErrorUnwrap(t *testing.T) {
	err := newProbeError(KindConnect, "connection timeout", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("ProbeError 应能展开原始错误")
	}
	if !IsKind(err, KindConnect) || IsKind(err, KindEgress) {
		t.Error("IsKind 判断错误")
	}
	if IsKind(errors.New("plain"), KindConnect) {
		t.Error("普通错误不应匹配任何分类")
	}
}
