package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 全局日志级别，配置热更新时直接修改
var LogLevel = new(slog.LevelVar)

// ParseLevel 解析 debug/info/warn/error，无法识别时返回 info
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// SetupLogger 终端彩色输出，配置 logFile 时另写一份 JSON 日志并按大小轮转
// 返回的 io.Closer 用于退出前关闭日志文件，可能为 nil
func SetupLogger(level, logFile string) (io.Closer, error) {
	LogLevel.Set(ParseLevel(level))

	console := tint.NewHandler(colorable.NewColorableStdout(), &tint.Options{
		Level:      LogLevel,
		TimeFormat: "2006-01-02 15:04:05",
	})

	if logFile == "" {
		slog.SetDefault(slog.New(console))
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		slog.SetDefault(slog.New(console))
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14, // 天
	}
	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: LogLevel})

	slog.SetDefault(slog.New(slog.NewMultiHandler(console, file)))
	return rotator, nil
}
