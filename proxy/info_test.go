package proxies

import (
	"sync"
	"testing"
)

func TestGeoResolverWithoutDB(t *testing.T) {
	g := NewGeoResolver(nil, "zh-CN")
	for _, ip := range []string{"203.0.113.5", "not-an-ip", "", "2001:db8::1"} {
		if loc := g.Lookup(ip); loc != UnknownLocation {
			t.Errorf("%q 未加载数据库时应返回 unknown, 实际: %+v", ip, loc)
		}
	}
}

func TestGeoResolverClosed(t *testing.T) {
	g := NewGeoResolver(nil, "")
	if err := g.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	// 重复关闭不报错
	if err := g.Close(); err != nil {
		t.Fatalf("重复关闭失败: %v", err)
	}
	if loc := g.Lookup("8.8.8.8"); loc != UnknownLocation {
		t.Errorf("关闭后应返回 unknown, 实际: %+v", loc)
	}
}

func TestGeoResolverConcurrent(t *testing.T) {
	g := NewGeoResolver(nil, "zh-CN")
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_ = g.Lookup("203.0.113.5")
		})
	}
	wg.Go(func() {
		_ = g.Close()
	})
	wg.Wait()
}

func TestLocalizedName(t *testing.T) {
	names := map[string]string{"en": "Guangdong", "zh-CN": "广东"}
	if got := localizedName(names, "zh-CN"); got != "广东" {
		t.Errorf("期望本地化名称, 实际: %s", got)
	}
	if got := localizedName(names, "ja"); got != "Guangdong" {
		t.Errorf("期望回退英文名称, 实际: %s", got)
	}
	if got := localizedName(nil, "zh-CN"); got != Unknown {
		t.Errorf("期望 unknown, 实际: %s", got)
	}
}

func TestCountryName(t *testing.T) {
	if got := countryName(geoName{ISOCode: "JP", Names: map[string]string{"zh-CN": "日本"}}, "zh-CN"); got != "日本" {
		t.Errorf("期望 日本, 实际: %s", got)
	}
	if got := countryName(geoName{ISOCode: "JP"}, "zh-CN"); got == Unknown || got == "" {
		t.Errorf("缺少名称时应根据国家代码回退, 实际: %s", got)
	}
	if got := countryName(geoName{}, "zh-CN"); got != Unknown {
		t.Errorf("期望 unknown, 实际: %s", got)
	}
	if got := countryName(geoName{ISOCode: "??"}, "zh-CN"); got != Unknown {
		t.Errorf("无效国家代码期望 unknown, 实际: %s", got)
	}
}
