package check

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"
)

// ProgressTracker 记录本批检测进度，只由收集协程写入
type ProgressTracker struct {
	total atomic.Int32
	done  atomic.Int32
}

// NewProgressTracker 初始化进度追踪器并重置外部原子变量。
func NewProgressTracker(total int) *ProgressTracker {
	pt := &ProgressTracker{}
	pt.total.Store(int32(min(total, math.MaxInt32)))

	ProxyCount.Store(clampUint32(total))
	Progress.Store(0)
	return pt
}

// Count 标记一个代理检测完成
func (pt *ProgressTracker) Count() {
	pt.done.Add(1)
	pt.refresh()
}

// Finalize 检测结束，被取消时总数修正为实际完成数
func (pt *ProgressTracker) Finalize() {
	if done := pt.done.Load(); done < pt.total.Load() {
		ProxyCount.Store(clampUint32(int(done)))
	}
	pt.refresh()
}

// refresh 进度只增不减
func (pt *ProgressTracker) refresh() {
	done := pt.done.Load()
	total := pt.total.Load()
	if done > total {
		done = total
	}
	Progress.Store(clampUint32(int(done)))
}

// showProgress 负责在控制台中渲染进度条。
func (pc *ProxyChecker) showProgress(done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			fmt.Print(pc.renderProgressString())
			fmt.Println()
			return
		case <-ticker.C:
			fmt.Print(pc.renderProgressString())
		}
	}
}

// renderProgressString 计算并格式化进度条字符串。
func (pc *ProxyChecker) renderProgressString() string {
	return renderProgress(int(Progress.Load()), int(ProxyCount.Load()), int(pc.available.Load()))
}

func renderProgress(current, total, available int) string {
	var percent float64
	if total > 0 {
		percent = float64(current) / float64(total) * 100
	}
	percent = max(0, min(percent, 100))

	barWidth := 40
	barFilled := int(percent / 100 * float64(barWidth))

	// \r 清空当前行
	return fmt.Sprintf("\r进度: [%-*s] %.1f%% (%d/%d) 可用: %d",
		barWidth,
		strings.Repeat("=", barFilled)+">",
		percent,
		current,
		total,
		available)
}
