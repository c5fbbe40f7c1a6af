package method

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// StatsSaver 保存统计报告到 output/stats
type StatsSaver struct {
	BasePath  string
	StatsPath string
}

// NewStatsSaver 创建统计报告保存器
func NewStatsSaver() (*StatsSaver, error) {
	local, err := NewLocalSaver()
	if err != nil {
		return nil, err
	}
	return &StatsSaver{
		BasePath:  local.BasePath,
		StatsPath: filepath.Join(local.OutputPath, "stats"),
	}, nil
}

// SaveToStats 保存统计报告
func SaveToStats(yamlData []byte, filename, message string) error {
	saver, err := NewStatsSaver()
	if err != nil {
		return fmt.Errorf("创建本地保存器失败: %w", err)
	}

	return saver.Save(yamlData, filename, message)
}

// Save 执行保存操作
func (ss *StatsSaver) Save(yamlData []byte, filename, message string) error {
	if err := validateInput(yamlData, filename); err != nil {
		return err
	}
	if err := os.MkdirAll(ss.StatsPath, dirMode); err != nil {
		return fmt.Errorf("创建目录失败 [%s]: %w", ss.StatsPath, err)
	}

	path := filepath.Join(ss.StatsPath, filename)
	if err := os.WriteFile(path, yamlData, fileMode); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	if message == "" {
		message = "保存检测统计成功"
	}
	slog.Info(message, "路径", path)

	return nil
}
