package proxies

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"
)

func TestShuffleOrderIsPermutation(t *testing.T) {
	var lines []string
	for i := range 40 {
		lines = append(lines, fmt.Sprintf("10.0.%d.%d:1080", i%4, i))
	}
	lines = append(lines, "bad line", "example.com:1080")

	order := ShuffleOrder(lines, ShuffleConfig{Rand: rand.New(rand.NewSource(1))})
	if len(order) != len(lines) {
		t.Fatalf("长度不一致: %d != %d", len(order), len(lines))
	}
	sorted := slices.Clone(order)
	slices.Sort(sorted)
	for i, v := range sorted {
		if v != i {
			t.Fatalf("不是有效排列: %v", order)
		}
	}
	if lines[0] != "10.0.0.0:1080" {
		t.Error("输入不应被修改")
	}
}

func TestShuffleOrderSpreadsSubnets(t *testing.T) {
	// 两个 /24 各 10 个，交替排列是可行的
	var lines []string
	for i := range 10 {
		lines = append(lines, fmt.Sprintf("10.0.1.%d:1080", i+1))
	}
	for i := range 10 {
		lines = append(lines, fmt.Sprintf("10.0.2.%d:1080", i+1))
	}

	order := ShuffleOrder(lines, ShuffleConfig{Passes: 3, Rand: rand.New(rand.NewSource(42))})

	adjacent := 0
	for i := 1; i < len(order); i++ {
		a := parseServerMeta(lines[order[i-1]][:len(lines[order[i-1]])-5])
		b := parseServerMeta(lines[order[i]][:len(lines[order[i]])-5])
		if same24(a, b) {
			adjacent++
		}
	}
	// 顺序排列时有 18 对相邻同网段
	if adjacent >= 18 {
		t.Errorf("打乱后相邻同网段数量过多: %d", adjacent)
	}
}

func TestShuffleOrderSmall(t *testing.T) {
	if got := ShuffleOrder(nil, ShuffleConfig{}); len(got) != 0 {
		t.Errorf("空输入应返回空排列: %v", got)
	}
	if got := ShuffleOrder([]string{"a:1"}, ShuffleConfig{}); !slices.Equal(got, []int{0}) {
		t.Errorf("单个元素: %v", got)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"10.0.1.1", "10.0.1.2", 0.75},
		{"10.0.1.1", "10.0.2.1", 0.5},
		{"10.0.1.1", "11.0.1.1", 0},
		{"abcd", "abxy", 0.5},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := similarity(parseServerMeta(tt.a), parseServerMeta(tt.b)); got != tt.want {
			t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestThresholdToCIDR(t *testing.T) {
	for th, want := range map[float64]string{1: "/32", 0.75: "/24", 0.5: "/16", 0.25: "/8", 0: "/24"} {
		if got := ThresholdToCIDR(th); got != want {
			t.Errorf("ThresholdToCIDR(%v) = %s, want %s", th, got, want)
		}
	}
}

func TestDeduplicateLines(t *testing.T) {
	lines := []string{
		"1.2.3.4:1080",
		"1.2.3.4|1080",
		"1.2.3.4:1080:u:p",
		"1.2.3.4|1080|u|p",
		"Example.com:1080",
		"example.com|1080",
		"bad",
		"bad",
		"1.2.3.4:1080:u:other",
	}
	got, removed := DeduplicateLines(lines)
	want := []string{"1.2.3.4:1080", "1.2.3.4:1080:u:p", "Example.com:1080", "bad", "bad", "1.2.3.4:1080:u:other"}
	if !slices.Equal(got, want) {
		t.Errorf("去重结果 = %v, want %v", got, want)
	}
	if removed != 3 {
		t.Errorf("移除数量 = %d, want 3", removed)
	}
}
