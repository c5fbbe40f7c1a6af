// Package config 解析配置文件
package config

import (
	_ "embed"
)

// 默认值
const (
	DefaultConcurrent       = 5
	DefaultMaxRetries       = 3
	DefaultTCPTimeout       = 3000 // ms
	DefaultHandshakeTimeout = 3000 // ms
	DefaultEgressTimeout    = 5000 // ms
	DefaultGeoLanguage      = "zh-CN"
)

// DefaultEgressURLs 纯文本返回出口IP的服务，按优先级排列
var DefaultEgressURLs = []string{
	"http://ifconfig.me/ip",
	"http://api.ipify.org",
	"http://icanhazip.com",
	"http://ident.me",
	"http://ipinfo.io/ip",
}

type Config struct {
	PrintProgress    bool     `yaml:"print-progress"`
	Concurrent       int      `yaml:"concurrent"`
	MaxRetries       int      `yaml:"max-retries"`
	TCPTimeout       int      `yaml:"tcp-timeout"`
	HandshakeTimeout int      `yaml:"handshake-timeout"`
	EgressTimeout    int      `yaml:"egress-timeout"`
	EgressURLs       []string `yaml:"egress-urls"`
	DialRate         int      `yaml:"dial-rate"`
	UDPFallback      bool     `yaml:"udp-fallback"`
	MaxMindDBPath    string   `yaml:"maxmind-db-path"`
	GeoLanguage      string   `yaml:"geo-language"`
	InputFile        string   `yaml:"input-file"`
	Deduplicate      bool     `yaml:"deduplicate"`
	Shuffle          bool     `yaml:"shuffle"`
	OutputDir        string   `yaml:"output-dir"`
	ExportFormat     string   `yaml:"export-format"`
	LogLevel         string   `yaml:"log-level"`
	LogFile          string   `yaml:"log-file"`
	CheckInterval    int      `yaml:"check-interval"`
	CronExpression   string   `yaml:"cron-expression"`
	ListenPort       string   `yaml:"listen-port"`
	APIKey           string   `yaml:"api-key"`
	SaveMethod       string   `yaml:"save-method"`
	WebDAVURL        string   `yaml:"webdav-url"`
	WebDAVUsername   string   `yaml:"webdav-username"`
	WebDAVPassword   string   `yaml:"webdav-password"`
	WorkerURL        string   `yaml:"worker-url"`
	WorkerToken      string   `yaml:"worker-token"`
	S3Endpoint       string   `yaml:"s3-endpoint"`
	S3AccessID       string   `yaml:"s3-access-id"`
	S3SecretKey      string   `yaml:"s3-secret-key"`
	S3Bucket         string   `yaml:"s3-bucket"`
	S3UseSSL         bool     `yaml:"s3-use-ssl"`
	S3BucketLookup   string   `yaml:"s3-bucket-lookup"`
	AppriseAPIServer string   `yaml:"apprise-api-server"`
	RecipientURL     []string `yaml:"recipient-url"`
	NotifyTitle      string   `yaml:"notify-title"`
}

// GlobalConfig 当前生效的配置
var GlobalConfig = Default()

// Default 默认配置，加载配置文件时以此为基础，未填写的字段保持默认值
func Default() *Config {
	return &Config{
		PrintProgress:    true,
		Concurrent:       DefaultConcurrent,
		MaxRetries:       DefaultMaxRetries,
		TCPTimeout:       DefaultTCPTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		EgressTimeout:    DefaultEgressTimeout,
		GeoLanguage:      DefaultGeoLanguage,
		Deduplicate:      true,
		ExportFormat:     "both",
		SaveMethod:       "local",
		LogLevel:         "info",
		NotifyTitle:      "🔔 SOCKS5 检测结果",
	}
}

// Normalize 为未填写或非法的字段补充默认值
func (c *Config) Normalize() {
	if c.Concurrent <= 0 {
		c.Concurrent = DefaultConcurrent
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = DefaultTCPTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.EgressTimeout <= 0 {
		c.EgressTimeout = DefaultEgressTimeout
	}
	if len(c.EgressURLs) == 0 {
		c.EgressURLs = append([]string(nil), DefaultEgressURLs...)
	}
	if c.GeoLanguage == "" {
		c.GeoLanguage = DefaultGeoLanguage
	}
	switch c.ExportFormat {
	case "csv", "txt", "both":
	default:
		c.ExportFormat = "both"
	}
	if c.SaveMethod == "" {
		c.SaveMethod = "local"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

//go:embed config.example.yaml
var DefaultConfigTemplate []byte
