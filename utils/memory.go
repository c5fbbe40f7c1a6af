package utils

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// MemoryUsage 当前进程常驻内存
func MemoryUsage() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("获取进程信息失败: %w", err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("获取内存信息失败: %w", err)
	}
	return info.RSS, nil
}

// LogMemoryUsage 输出进程内存占用，获取失败时退回 Go 运行时统计
func LogMemoryUsage(msg string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rss, err := MemoryUsage()
	if err != nil {
		slog.Debug(msg, "heap", FormatBytes(ms.HeapAlloc), "goroutines", runtime.NumGoroutine())
		return
	}
	slog.Debug(msg, "rss", FormatBytes(rss), "heap", FormatBytes(ms.HeapAlloc), "goroutines", runtime.NumGoroutine())
}
