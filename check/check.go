// Package check SOCKS5 代理检测主逻辑
package check

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sinspired/socks5-check/assets"
	"github.com/sinspired/socks5-check/config"
	proxies "github.com/sinspired/socks5-check/proxy"
)

// 对外暴露变量，供 API 及信号处理读取
var (
	Progress   atomic.Uint32 // 已检测数量
	Available  atomic.Uint32 // 可用数量
	ProxyCount atomic.Uint32 // 本批总数

	ForceClose atomic.Bool
)

// Result 单个代理的检测结果，Latency 单位毫秒，仅 OK 时有意义
type Result struct {
	Proxy    string `json:"proxy"`
	OK       bool   `json:"ok"`
	IP       string `json:"ip,omitempty"`
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	Latency  int64  `json:"latency"`
	TCP      bool   `json:"tcp"`
	UDP      bool   `json:"udp"`
	Error    string `json:"error,omitempty"`
	UDPError string `json:"udp_error,omitempty"`
	Attempts int    `json:"attempts"`
}

// Checker 检测单行代理，ProxyChecker 只依赖此接口
type Checker interface {
	Check(ctx context.Context, raw string) Result
}

// indexedResult 在工作协程与收集协程间传递
type indexedResult struct {
	index  int
	result Result
}

// ProxyChecker 固定并发数的检测调度器
type ProxyChecker struct {
	checker     Checker
	concurrency int
	observers   []Observer

	order      []int // 分发顺序，nil 为输入顺序
	results    []Result
	completed  []bool
	resultChan chan indexedResult
	available  atomic.Int32

	pt *ProgressTracker
}

// NewProxyChecker concurrency <= 0 时使用默认并发数
func NewProxyChecker(checker Checker, concurrency int, observers ...Observer) *ProxyChecker {
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrent
	}
	return &ProxyChecker{
		checker:     checker,
		concurrency: concurrency,
		observers:   observers,
	}
}

// SetOrder 设置分发顺序，order 必须是输入下标的一个排列
func (pc *ProxyChecker) SetOrder(order []int) {
	pc.order = order
}

// Check 按全局配置检测一批代理，打开并在结束时关闭地理数据库
func Check(ctx context.Context, lines []string, observers ...Observer) ([]Result, error) {
	ForceClose.Store(false)
	ProxyCount.Store(0)
	Available.Store(0)
	Progress.Store(0)

	if len(lines) == 0 {
		slog.Info("没有需要检测的代理")
		return nil, nil
	}

	// 本批检测使用配置快照，热更新只影响下一批
	cfg := *config.GlobalConfig
	cfg.Normalize()
	showProgress := cfg.PrintProgress

	geoDB, err := assets.OpenMaxMindDB(cfg.MaxMindDBPath)
	if err != nil {
		slog.Warn(fmt.Sprintf("打开 MaxMind 数据库失败, 位置信息将显示为 unknown: %v", err))
		geoDB = nil
	}
	geo := proxies.NewGeoResolver(geoDB, cfg.GeoLanguage)
	defer func() {
		if err := geo.Close(); err != nil {
			slog.Debug(fmt.Sprintf("关闭 MaxMind 数据库失败: %v", err))
		}
	}()

	concurrency := min(cfg.Concurrent, len(lines))
	pc := NewProxyChecker(NewVerifier(&cfg, geo), concurrency, observers...)
	if cfg.Shuffle {
		shuffleCfg := proxies.ShuffleConfig{MinSpacing: concurrency}
		pc.SetOrder(proxies.ShuffleOrder(lines, shuffleCfg))
		slog.Debug("已打乱检测顺序", "网段", proxies.ThresholdToCIDR(0.75), "最小间距", concurrency)
	}

	args := []any{
		"concurrent", concurrency,
		"max-retries", cfg.MaxRetries,
		"tcp-timeout", cfg.TCPTimeout,
		"egress-timeout", cfg.EgressTimeout,
	}
	if cfg.DialRate > 0 {
		args = append(args, "dial-rate", cfg.DialRate)
	}
	if cfg.UDPFallback {
		args = append(args, "udp-fallback", cfg.UDPFallback)
	}
	slog.Info("当前参数", args...)

	// 进度显示，等待 showProgress 打印最终状态后再继续输出日志
	var doneCh, finishedCh chan struct{}
	if showProgress {
		doneCh = make(chan struct{})
		finishedCh = make(chan struct{})
		go func() {
			pc.showProgress(doneCh)
			close(finishedCh)
		}()
	}

	results := pc.Run(ctx, lines)

	if showProgress {
		close(doneCh)
		<-finishedCh
	}

	if ForceClose.Load() {
		slog.Warn("检测已被手动结束")
	}
	slog.Info(fmt.Sprintf("可用代理数量: %d/%d", pc.available.Load(), len(lines)))

	return results, nil
}

// Run 检测全部代理并按原始顺序返回结果，阻塞直到所有已分发的任务完成
// 未分发的任务在取消后以 "cancelled" 返回，不触发 OnResult
func (pc *ProxyChecker) Run(ctx context.Context, lines []string) []Result {
	total := len(lines)
	pc.results = make([]Result, total)
	pc.completed = make([]bool, total)
	pc.resultChan = make(chan indexedResult, pc.concurrency)
	pc.available.Store(0)
	pc.pt = NewProgressTracker(total)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 监测 ForceClose
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ForceClose.Load() {
					slog.Warn("用户手动结束检测,等待收集结果")
					cancel()
					return
				}
			}
		}
	}()

	var collectorWg sync.WaitGroup
	collectorWg.Go(func() {
		pc.collectResults(total)
	})

	pc.distributeJobs(ctx, lines)
	close(pc.resultChan)
	collectorWg.Wait()

	for i, done := range pc.completed {
		if !done {
			pc.results[i] = Result{Proxy: lines[i], Error: errCancelled}
		}
	}

	pc.pt.Finalize()
	for _, o := range pc.observers {
		o.OnBatchComplete()
	}
	return pc.results
}

// distributeJobs 工作协程通过原子索引领取任务
func (pc *ProxyChecker) distributeJobs(ctx context.Context, lines []string) {
	concurrency := min(pc.concurrency, len(lines))
	var wg sync.WaitGroup

	var index int64 = -1

	for range concurrency {
		wg.Go(func() {
			for {
				next := atomic.AddInt64(&index, 1)
				if next >= int64(len(lines)) {
					return
				}
				if checkCtxDone(ctx) {
					return
				}
				i := int(next)
				if len(pc.order) == len(lines) {
					i = pc.order[i]
				}

				res := pc.checker.Check(ctx, lines[i])
				// 检测开始前就被取消，按未分发处理
				if res.Error == errCancelled && res.Attempts == 0 {
					return
				}
				pc.resultChan <- indexedResult{index: i, result: res}
			}
		})
	}

	wg.Wait()
}

// collectResults 唯一写入结果和进度的协程，回调按完成顺序串行触发
func (pc *ProxyChecker) collectResults(total int) {
	done := 0
	for ir := range pc.resultChan {
		pc.results[ir.index] = ir.result
		pc.completed[ir.index] = true
		done++

		if ir.result.OK {
			pc.incrementAvailable()
		}
		pc.pt.Count()

		for _, o := range pc.observers {
			o.OnResult(ir.index, ir.result)
			o.OnProgress(done, total)
		}
	}
}

// Results 最近一次 Run 的结果
func (pc *ProxyChecker) Results() []Result {
	return pc.results
}

func (pc *ProxyChecker) incrementAvailable() {
	pc.available.Add(1)
	Available.Add(1)
}

// checkCtxDone 提供一个非阻塞的检查，判断上下文是否已结束或是否收到强制关闭信号。
func checkCtxDone(c context.Context) bool {
	if ForceClose.Load() {
		return true
	}
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// clampUint32 防止溢出
func clampUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if int64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
