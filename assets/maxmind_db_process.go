// Package assets 本地资源文件处理
package assets

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/oschwald/maxminddb-golang/v2"
	"github.com/sinspired/socks5-check/save/method"
)

// DefaultMaxMindDBName 未指定路径时在输出目录中查找
const DefaultMaxMindDBName = "GeoLite2-City.mmdb"

const zstdExt = ".zst"

// ResolveMaxMindDBPath 未指定路径时依次查找 output 目录下的 .mmdb 与 .mmdb.zst
func ResolveMaxMindDBPath(dbPath string) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	saver, err := method.NewLocalSaver()
	if err != nil {
		return "", err
	}
	mmdbPath := filepath.Join(saver.OutputPath, DefaultMaxMindDBName)
	if _, err := os.Stat(mmdbPath); err == nil {
		return mmdbPath, nil
	}
	if _, err := os.Stat(mmdbPath + zstdExt); err == nil {
		return mmdbPath + zstdExt, nil
	}
	return "", fmt.Errorf("未找到 maxmind 数据库: %s", mmdbPath)
}

// OpenMaxMindDB 打开 MaxMind 数据库，.zst 压缩文件先解压到同目录
func OpenMaxMindDB(dbPath string) (*maxminddb.Reader, error) {
	mmdbPath, err := ResolveMaxMindDBPath(dbPath)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(mmdbPath, zstdExt) {
		if mmdbPath, err = decompressZstd(mmdbPath); err != nil {
			return nil, err
		}
	}

	db, err := maxminddb.Open(mmdbPath)
	if err != nil {
		return nil, fmt.Errorf("maxmind数据库打开失败: %w", err)
	}
	slog.Debug("已加载 maxmind 数据库", "path", mmdbPath, "type", db.Metadata.DatabaseType)
	return db, nil
}

// decompressZstd 解压 xxx.mmdb.zst 为 xxx.mmdb，已解压且不旧于压缩文件时直接复用
func decompressZstd(zstPath string) (string, error) {
	target := strings.TrimSuffix(zstPath, zstdExt)

	src, err := os.Stat(zstPath)
	if err != nil {
		return "", fmt.Errorf("maxmind数据库不存在: %w", err)
	}
	if dst, err := os.Stat(target); err == nil && !dst.ModTime().Before(src.ModTime()) {
		return target, nil
	}

	in, err := os.Open(zstPath)
	if err != nil {
		return "", fmt.Errorf("打开压缩文件失败: %w", err)
	}
	defer in.Close()

	zstdDecoder, err := zstd.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("zstd解码器创建失败: %w", err)
	}
	defer zstdDecoder.Close()

	// 先写临时文件，避免解压中断留下损坏的数据库
	tmp := target + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("maxmind数据库文件创建失败: %w", err)
	}
	if _, err := io.Copy(out, zstdDecoder); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("maxmind数据库文件解压失败: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("关闭数据库文件失败: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("保存数据库文件失败: %w", err)
	}

	slog.Info("已解压 maxmind 数据库", "path", target)
	return target, nil
}
