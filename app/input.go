package app

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/sinspired/socks5-check/utils"
)

// ErrNoInput 未配置待检测代理列表
var ErrNoInput = errors.New("未配置待检测代理列表: input-file")

// resolveInputPath 相对路径先按当前目录查找，不存在时再按程序目录查找
func resolveInputPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if p := filepath.Join(utils.GetExecutablePath(), path); fileExists(p) {
		return p
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadProxyLines 读取代理列表，每行一个，忽略空行与 # 注释，保持原始顺序
func LoadProxyLines(path string) ([]string, error) {
	if path == "" {
		return nil, ErrNoInput
	}
	path = resolveInputPath(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开代理列表失败: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取代理列表失败: %w", err)
	}

	lines = lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
		return line, line != "" && !strings.HasPrefix(line, "#")
	})
	slog.Info(fmt.Sprintf("读取代理列表: %d 个", len(lines)), "path", path)
	return lines, nil
}
