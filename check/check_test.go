package check

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sinspired/socks5-check/config"
)

// sleepChecker 随机耗时后返回结果，记录最大并发
type sleepChecker struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *sleepChecker) Check(ctx context.Context, raw string) Result {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)

	i, _ := strconv.Atoi(raw)
	return Result{Proxy: raw, OK: i%2 == 0, TCP: true, Attempts: 1}
}

// recorder 记录回调，回调串行触发因此无需加锁
type recorder struct {
	results  map[int]int
	progress []int
	totals   []int
	complete int
}

func newRecorder() *recorder {
	return &recorder{results: make(map[int]int)}
}

func (r *recorder) OnProgress(done, total int) {
	r.progress = append(r.progress, done)
	r.totals = append(r.totals, total)
}
func (r *recorder) OnResult(index int, _ Result) { r.results[index]++ }
func (r *recorder) OnBatchComplete()             { r.complete++ }

func makeLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = strconv.Itoa(i)
	}
	return lines
}

func TestProxyCheckerRun(t *testing.T) {
	ForceClose.Store(false)
	checker := &sleepChecker{}
	rec := newRecorder()
	pc := NewProxyChecker(checker, 5, rec)

	lines := makeLines(50)
	results := pc.Run(context.Background(), lines)

	if len(results) != 50 {
		t.Fatalf("结果数量 %d, 期望 50", len(results))
	}
	for i, r := range results {
		if r.Proxy != lines[i] {
			t.Errorf("结果 %d 顺序错误: %q", i, r.Proxy)
		}
	}
	for i := range 50 {
		if rec.results[i] != 1 {
			t.Errorf("索引 %d 回调 %d 次, 期望 1 次", i, rec.results[i])
		}
	}
	if len(rec.progress) != 50 {
		t.Fatalf("进度回调 %d 次, 期望 50 次", len(rec.progress))
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] < rec.progress[i-1] {
			t.Fatalf("进度回退: %v", rec.progress)
		}
	}
	if last := rec.progress[len(rec.progress)-1]; last != 50 {
		t.Errorf("最终进度 %d, 期望 50", last)
	}
	for _, total := range rec.totals {
		if total != 50 {
			t.Fatalf("总数 %d, 期望 50", total)
		}
	}
	if rec.complete != 1 {
		t.Errorf("批次完成回调 %d 次, 期望 1 次", rec.complete)
	}
	if peak := checker.peak.Load(); peak > 5 {
		t.Errorf("最大并发 %d 超过 5", peak)
	}
	if Progress.Load() != 50 || ProxyCount.Load() != 50 || Available.Load() != 25 {
		t.Errorf("全局计数 progress=%d count=%d available=%d", Progress.Load(), ProxyCount.Load(), Available.Load())
	}
}

func TestProxyCheckerEmpty(t *testing.T) {
	rec := newRecorder()
	results := NewProxyChecker(&sleepChecker{}, 5, rec).Run(context.Background(), nil)
	if len(results) != 0 || rec.complete != 1 || len(rec.progress) != 0 {
		t.Errorf("空批次: results=%d complete=%d progress=%d", len(results), rec.complete, len(rec.progress))
	}
}

// cancelAtChecker 检测到指定行时取消整批
type cancelAtChecker struct {
	at     string
	cancel context.CancelFunc
}

func (c *cancelAtChecker) Check(ctx context.Context, raw string) Result {
	if raw == c.at {
		c.cancel()
	}
	return Result{Proxy: raw, OK: true, Attempts: 1}
}

func TestProxyCheckerCancel(t *testing.T) {
	ForceClose.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newRecorder()
	pc := NewProxyChecker(&cancelAtChecker{at: "10", cancel: cancel}, 1, rec)
	results := pc.Run(ctx, makeLines(30))

	if len(results) != 30 {
		t.Fatalf("结果数量 %d, 期望 30", len(results))
	}
	for i, r := range results {
		cancelled := r.Error == errCancelled
		if i <= 10 && cancelled {
			t.Errorf("索引 %d 已完成, 不应标记为取消", i)
		}
		if i > 10 && !cancelled {
			t.Errorf("索引 %d 未分发, 应标记为取消: %+v", i, r)
		}
	}
	if len(rec.results) != 11 {
		t.Errorf("OnResult 回调 %d 个索引, 期望 11 个", len(rec.results))
	}
	if rec.complete != 1 {
		t.Errorf("批次完成回调 %d 次, 期望 1 次", rec.complete)
	}
	if ProxyCount.Load() != 11 {
		t.Errorf("取消后总数应修正为已完成数, 实际 %d", ProxyCount.Load())
	}
}

func TestHooks(t *testing.T) {
	var events []string
	h := Hooks{
		ResultFunc: func(index int, r Result) {
			events = append(events, fmt.Sprintf("result:%d", index))
		},
	}
	// 未设置的回调不应 panic
	h.OnProgress(1, 2)
	h.OnBatchComplete()
	h.OnResult(3, Result{})
	if len(events) != 1 || events[0] != "result:3" {
		t.Errorf("回调记录 %v", events)
	}
}

func TestRenderProgress(t *testing.T) {
	cases := []struct {
		current, total int
		want           string
	}{
		{0, 0, "0.0%"},
		{5, 10, "50.0%"},
		{10, 10, "100.0%"},
		{12, 10, "100.0%"},
	}
	for _, c := range cases {
		got := renderProgress(c.current, c.total, 1)
		if !strings.Contains(got, c.want) {
			t.Errorf("renderProgress(%d, %d) = %q, 缺少 %q", c.current, c.total, got, c.want)
		}
	}
}

// orderRecorder 记录 OnResult 的下标顺序
type orderRecorder struct {
	Hooks
	indexes []int
}

func (o *orderRecorder) OnResult(index int, _ Result) { o.indexes = append(o.indexes, index) }

func TestProxyCheckerOrder(t *testing.T) {
	ForceClose.Store(false)
	rec := &orderRecorder{}
	pc := NewProxyChecker(&sleepChecker{}, 1, rec)

	lines := makeLines(6)
	pc.SetOrder([]int{5, 4, 3, 2, 1, 0})
	results := pc.Run(context.Background(), lines)

	for i, r := range results {
		if r.Proxy != lines[i] {
			t.Errorf("结果 %d 应按输入顺序返回, 实际: %q", i, r.Proxy)
		}
	}
	want := []int{5, 4, 3, 2, 1, 0}
	if fmt.Sprint(rec.indexes) != fmt.Sprint(want) {
		t.Errorf("分发顺序 = %v, want %v", rec.indexes, want)
	}
}

func TestCheckConfigReloadDuringBatch(t *testing.T) {
	old := *config.GlobalConfig
	t.Cleanup(func() { *config.GlobalConfig = old })
	ForceClose.Store(false)

	for _, initial := range []bool{false, true} {
		cfg := config.Default()
		cfg.PrintProgress = initial
		cfg.Concurrent = 0
		cfg.OutputDir = t.TempDir()
		cfg.MaxMindDBPath = filepath.Join(t.TempDir(), "missing.mmdb")
		*config.GlobalConfig = *cfg

		// 模拟检测过程中配置文件被热更新
		reload := Hooks{ResultFunc: func(int, Result) {
			next := *config.GlobalConfig
			next.PrintProgress = !initial
			next.Concurrent = 50
			*config.GlobalConfig = next
		}}

		lines := []string{"bad", "also-bad", "1.2.3.4:99999"}
		results, err := Check(context.Background(), lines, reload)
		if err != nil {
			t.Fatalf("print-progress=%v 检测失败: %v", initial, err)
		}
		if len(results) != len(lines) {
			t.Fatalf("结果数量 %d, 期望 %d", len(results), len(lines))
		}
		for _, r := range results {
			if r.Error != "format error" || r.Attempts != 0 {
				t.Errorf("%q 期望格式错误, 实际: %+v", r.Proxy, r)
			}
		}
		if config.GlobalConfig.PrintProgress != !initial || config.GlobalConfig.Concurrent != 50 {
			t.Errorf("热更新后的配置被覆盖: %+v", config.GlobalConfig)
		}
	}
}

func TestCheckDoesNotNormalizeGlobalConfig(t *testing.T) {
	old := *config.GlobalConfig
	t.Cleanup(func() { *config.GlobalConfig = old })
	ForceClose.Store(false)

	cfg := config.Default()
	cfg.PrintProgress = false
	cfg.Concurrent = 0
	cfg.EgressURLs = nil
	cfg.MaxMindDBPath = filepath.Join(t.TempDir(), "missing.mmdb")
	*config.GlobalConfig = *cfg

	if _, err := Check(context.Background(), []string{"bad"}); err != nil {
		t.Fatalf("检测失败: %v", err)
	}
	if config.GlobalConfig.Concurrent != 0 || config.GlobalConfig.EgressURLs != nil {
		t.Errorf("全局配置不应被修改: concurrent=%d egress-urls=%v",
			config.GlobalConfig.Concurrent, config.GlobalConfig.EgressURLs)
	}
}
