// Package method 保存检测结果的方法
package method

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sinspired/socks5-check/config"
	"github.com/sinspired/socks5-check/utils"
)

const (
	outputDirName             = "output"
	fileMode      os.FileMode = 0o644
	dirMode       os.FileMode = 0o755
)

// LocalSaver 保存到本地输出目录
type LocalSaver struct {
	BasePath   string
	OutputPath string
}

// NewLocalSaver 输出目录未配置时使用程序目录下的 output，相对路径基于程序目录
func NewLocalSaver() (*LocalSaver, error) {
	basePath := utils.GetExecutablePath()
	if basePath == "" {
		return nil, fmt.Errorf("获取可执行文件路径失败")
	}

	outputPath := config.GlobalConfig.OutputDir
	if outputPath == "" {
		outputPath = outputDirName
	}
	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(basePath, outputPath)
	}

	return &LocalSaver{
		BasePath:   basePath,
		OutputPath: outputPath,
	}, nil
}

// SaveToLocal 保存到本地的入口函数
func SaveToLocal(data []byte, filename string) error {
	saver, err := NewLocalSaver()
	if err != nil {
		return fmt.Errorf("创建本地保存器失败: %w", err)
	}
	return saver.Save(data, filename)
}

// Save 写入 OutputPath/filename
func (ls *LocalSaver) Save(data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}
	if err := os.MkdirAll(ls.OutputPath, dirMode); err != nil {
		return fmt.Errorf("创建目录失败 [%s]: %w", ls.OutputPath, err)
	}

	path := filepath.Join(ls.OutputPath, filename)
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	slog.Info("保存检测结果成功", "路径", path)
	return nil
}

// validateInput 各保存方法共用的参数校验
func validateInput(data []byte, filename string) error {
	if len(data) == 0 {
		return fmt.Errorf("数据为空")
	}
	if filename == "" {
		return fmt.Errorf("filename不能为空")
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("filename包含非法字符: %s", filename)
	}
	return nil
}
