package check

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/sinspired/socks5-check/save/method"
)

// 延迟分档，与控制台着色一致
const (
	latencyFast   = "<300ms"
	latencyMedium = "300-1000ms"
	latencySlow   = ">=1000ms"
)

// AnalysisStats 一批检测结果的统计
type AnalysisStats struct {
	GeneratedAt string         `yaml:"generated-at" json:"generated_at"`
	Summary     string         `yaml:"summary" json:"summary"`
	Total       int            `yaml:"total" json:"total"`
	Available   int            `yaml:"available" json:"available"`
	Cancelled   int            `yaml:"cancelled,omitempty" json:"cancelled,omitempty"`
	TCP         int            `yaml:"tcp-reachable" json:"tcp_reachable"`
	UDP         int            `yaml:"udp-supported" json:"udp_supported"`
	AvgLatency  int64          `yaml:"avg-latency-ms" json:"avg_latency_ms"`
	Countries   map[string]int `yaml:"countries" json:"countries"`
	Latency     map[string]int `yaml:"latency" json:"latency"`
	Failures    map[string]int `yaml:"failures,omitempty" json:"failures,omitempty"`
}

// latencyBucket 延迟所在分档
func latencyBucket(ms int64) string {
	switch {
	case ms < 300:
		return latencyFast
	case ms < 1000:
		return latencyMedium
	default:
		return latencySlow
	}
}

// failureReason 去掉错误详情，只保留原因前缀用于归类
func failureReason(msg string) string {
	if i := strings.Index(msg, ":"); i > 0 {
		return strings.TrimSpace(msg[:i])
	}
	return msg
}

// NewAnalysisStats 统计结果
func NewAnalysisStats(results []Result) *AnalysisStats {
	ok := lo.Filter(results, func(r Result, _ int) bool { return r.OK })
	failed := lo.Filter(results, func(r Result, _ int) bool { return !r.OK && r.Error != errCancelled })

	s := &AnalysisStats{
		GeneratedAt: time.Now().Format(time.DateTime),
		Total:       len(results),
		Available:   len(ok),
		Cancelled:   lo.CountBy(results, func(r Result) bool { return r.Error == errCancelled }),
		TCP:         lo.CountBy(results, func(r Result) bool { return r.TCP }),
		UDP:         lo.CountBy(ok, func(r Result) bool { return r.UDP }),
		Countries:   lo.CountValuesBy(ok, func(r Result) string { return r.Country }),
		Latency:     lo.CountValuesBy(ok, func(r Result) string { return latencyBucket(r.Latency) }),
		Failures:    lo.CountValuesBy(failed, func(r Result) string { return failureReason(r.Error) }),
	}
	if len(ok) > 0 {
		s.AvgLatency = lo.SumBy(ok, func(r Result) int64 { return r.Latency }) / int64(len(ok))
	}
	s.Summary = s.generateSummary()
	return s
}

// GenerateAnalysisReport 输出统计日志并保存到 stats/summary.yaml
func GenerateAnalysisReport(results []Result) *AnalysisStats {
	s := NewAnalysisStats(results)
	s.logSummary()

	data, err := yaml.Marshal(s)
	if err != nil {
		slog.Error(fmt.Sprintf("序列化检测统计失败: %v", err))
		return s
	}
	var sb strings.Builder
	sb.WriteString("# 检测结果分析报告\n")
	sb.Write(data)
	if err := method.SaveToStats([]byte(sb.String()), "summary.yaml", "保存检测统计成功"); err != nil {
		slog.Error(fmt.Sprintf("保存检测统计失败: %v", err))
	}
	return s
}

// generateSummary 生成单段落摘要
func (s *AnalysisStats) generateSummary() string {
	if s.Available == 0 {
		return fmt.Sprintf("共检测 %d 个代理，未发现可用代理。", s.Total)
	}
	return fmt.Sprintf(
		"共检测 %d 个代理，可用 %d 个，其中支持 UDP %d 个。"+
			"覆盖 %d 个国家/地区[Top: %s]，平均延迟 %dms[%s]。",
		s.Total, s.Available, s.UDP,
		len(s.Countries), getTopKeys(s.Countries, 3),
		s.AvgLatency, formatMapToInline(s.Latency),
	)
}

// logSummary 终端结构化输出
func (s *AnalysisStats) logSummary() {
	if s.Available == 0 {
		slog.Warn("分析完成：未发现可用代理", "总数", s.Total, "TCP可达", s.TCP)
		return
	}
	slog.Info("可用代理概况",
		"可用", fmt.Sprintf("%d/%d", s.Available, s.Total),
		"UDP", s.UDP,
		"平均延迟", fmt.Sprintf("%dms", s.AvgLatency),
		"国家", getTopKeys(s.Countries, 5),
	)
	if len(s.Failures) > 0 {
		slog.Debug("失败原因", "统计", formatMapToInline(s.Failures))
	}
}

// 工具函数

type kv struct {
	K string
	V int
}

// sortedCounts 按数量降序，数量相同按名称排序
func sortedCounts(m map[string]int) []kv {
	res := make([]kv, 0, len(m))
	for k, v := range m {
		res = append(res, kv{k, v})
	}
	slices.SortFunc(res, func(a, b kv) int {
		if a.V != b.V {
			return b.V - a.V
		}
		return strings.Compare(a.K, b.K)
	})
	return res
}

// formatMapToInline 将 map 转换为内联字符串: "<300ms: 10, >=1000ms: 5"
func formatMapToInline(m map[string]int) string {
	parts := lo.Map(sortedCounts(m), func(item kv, _ int) string {
		return fmt.Sprintf("%s: %d", item.K, item.V)
	})
	return strings.Join(parts, ", ")
}

func getTopKeys(m map[string]int, limit int) string {
	res := sortedCounts(m)
	keys := lo.Map(res[:min(limit, len(res))], func(item kv, _ int) string { return item.K })
	return strings.Join(keys, ", ")
}
