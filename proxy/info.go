package proxies

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"

	"github.com/biter777/countries"
	"github.com/oschwald/maxminddb-golang/v2"
)

// Unknown 查询失败时的占位值
const Unknown = "unknown"

// Location 出口IP的大致位置
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

// UnknownLocation 查询失败时返回
var UnknownLocation = Location{Country: Unknown, Region: Unknown}

type geoName struct {
	ISOCode string            `maxminddb:"iso_code"`
	Names   map[string]string `maxminddb:"names"`
}

// cityRecord 只解码需要的字段，兼容 GeoLite2-City 与 GeoLite2-Country
type cityRecord struct {
	Country      geoName   `maxminddb:"country"`
	Subdivisions []geoName `maxminddb:"subdivisions"`
}

// GeoResolver 基于本地 MaxMind 数据库查询位置，任何失败都降级为 unknown
type GeoResolver struct {
	mu     sync.RWMutex
	db     *maxminddb.Reader
	lang   string
	closed bool
}

// NewGeoResolver db 可以为 nil，此时所有查询都返回 unknown
func NewGeoResolver(db *maxminddb.Reader, lang string) *GeoResolver {
	if lang == "" {
		lang = "en"
	}
	return &GeoResolver{db: db, lang: lang}
}

// Lookup 查询 IP 所在国家和地区
func (g *GeoResolver) Lookup(ip string) Location {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.db == nil || g.closed {
		return UnknownLocation
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		slog.Debug(fmt.Sprintf("无效的IP地址: %q", ip))
		return UnknownLocation
	}

	var rec cityRecord
	result := g.db.Lookup(addr)
	if err := result.Decode(&rec); err != nil {
		slog.Debug(fmt.Sprintf("maxmind查询失败: %s %v", ip, err))
		return UnknownLocation
	}
	if !result.Found() {
		return UnknownLocation
	}

	loc := Location{
		Country: countryName(rec.Country, g.lang),
		Region:  Unknown,
	}
	// 最后一级行政区最精确
	if n := len(rec.Subdivisions); n > 0 {
		loc.Region = localizedName(rec.Subdivisions[n-1].Names, g.lang)
	}
	return loc
}

// Close 关闭数据库，之后的查询返回 unknown
func (g *GeoResolver) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.db == nil {
		g.closed = true
		return nil
	}
	g.closed = true
	return g.db.Close()
}

// localizedName 优先本地化名称，其次英文名称
func localizedName(names map[string]string, lang string) string {
	if name := names[lang]; name != "" {
		return name
	}
	if name := names["en"]; name != "" {
		return name
	}
	return Unknown
}

// countryName 数据库缺少名称时，用国家代码换算英文名
func countryName(n geoName, lang string) string {
	if name := localizedName(n.Names, lang); name != Unknown {
		return name
	}
	if n.ISOCode == "" {
		return Unknown
	}
	code := countries.ByName(n.ISOCode)
	if code == countries.Unknown {
		return Unknown
	}
	return code.String()
}
