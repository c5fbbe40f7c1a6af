// Package utils 日志、通知、信号等通用工具
package utils

import (
	"crypto/rand"
	"math/big"
	"time"

	units "github.com/docker/go-units"
)

// GenerateRandomString 生成指定长度的随机字符串
func GenerateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			panic(err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// FormatBytes 字节数转为可读格式，如 "12.3MB"
func FormatBytes(n uint64) string {
	return units.HumanSize(float64(n))
}

// FormatDuration 秒级以下直接显示，否则使用 "About a minute" 这类可读格式
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return units.HumanDuration(d)
}
