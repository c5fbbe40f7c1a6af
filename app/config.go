package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/sinspired/socks5-check/config"
	"github.com/sinspired/socks5-check/utils"
)

// configDebounce 编辑器保存时可能连续产生多次写事件
const configDebounce = 100 * time.Millisecond

// initConfigPath 初始化配置文件路径
func (app *App) initConfigPath() error {
	if app.configPath == "" {
		configDir := filepath.Join(utils.GetExecutablePath(), "config")

		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}

		app.configPath = filepath.Join(configDir, "config.yaml")
	}
	return nil
}

// loadConfig 加载配置文件，命令行参数优先于配置文件
func (app *App) loadConfig() error {
	cfg, err := readConfig(app.configPath)
	if err != nil {
		return err
	}
	if app.inputFile != "" {
		cfg.InputFile = app.inputFile
	}
	if app.outputDir != "" {
		cfg.OutputDir = app.outputDir
	}
	*config.GlobalConfig = *cfg

	utils.LogLevel.Set(utils.ParseLevel(cfg.LogLevel))
	slog.Info("配置文件读取成功")
	return nil
}

// readConfig 在默认配置上解析，避免旧配置残留
func readConfig(path string) (*config.Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := config.Default()
	if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// createDefaultConfig 写入默认配置模板
func (app *App) createDefaultConfig() error {
	slog.Info("配置文件不存在，创建默认配置文件")

	if err := os.WriteFile(app.configPath, config.DefaultConfigTemplate, 0o644); err != nil {
		return fmt.Errorf("写入默认配置文件失败: %w", err)
	}

	slog.Info("默认配置文件创建成功")
	slog.Info(fmt.Sprintf("请编辑配置文件: %s", app.configPath))
	return nil
}

// initConfigWatcher 初始化配置文件监听
func (app *App) initConfigWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	app.watcher = watcher

	absPath, err := filepath.Abs(app.configPath)
	if err != nil {
		absPath = app.configPath
	}

	var debounceTimer *time.Timer
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != absPath && event.Name != app.configPath {
					continue
				}
				// 兼容容器外修改
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(configDebounce, app.reloadConfig)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error(fmt.Sprintf("配置文件监听错误: %v", err))
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("添加配置文件监听失败: %w", err)
	}

	slog.Info("配置文件监听已启动")
	return nil
}

// reloadConfig 重新加载配置，调度设置变化时重新配置定时器
func (app *App) reloadConfig() {
	slog.Info("配置文件发生变化，正在重新加载")
	oldCronExpr := config.GlobalConfig.CronExpression
	oldInterval := config.GlobalConfig.CheckInterval
	oldAPIKey := config.GlobalConfig.APIKey

	if err := app.loadConfig(); err != nil {
		slog.Error(fmt.Sprintf("重新加载配置文件失败: %v", err))
		return
	}

	if config.GlobalConfig.APIKey == "" {
		config.GlobalConfig.APIKey = oldAPIKey
	}

	if oldCronExpr != config.GlobalConfig.CronExpression ||
		oldInterval != config.GlobalConfig.CheckInterval {
		slog.Warn("检测设置发生变化，重新配置定时器")
		app.setTimer()
	}
}
