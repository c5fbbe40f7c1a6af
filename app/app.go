// Package app 应用程序主入口
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sinspired/socks5-check/check"
	"github.com/sinspired/socks5-check/config"
	proxies "github.com/sinspired/socks5-check/proxy"
	"github.com/sinspired/socks5-check/save"
	"github.com/sinspired/socks5-check/utils"
)

// App 结构体用于管理应用程序状态
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	version    string
	configPath string
	inputFile  string
	outputDir  string

	watcher   *fsnotify.Watcher
	logCloser io.Closer
	checkChan chan struct{} // 触发检测的通道
	checking  atomic.Bool   // 检测状态标志

	timerMu sync.Mutex
	ticker  *time.Ticker
	done    chan struct{} // 用于结束ticker goroutine的信号
	cron    *cron.Cron    // crontab调度器

	httpServer *http.Server
	stopCh     <-chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error

	lastCheck   lastCheckResult
	resultsMu   sync.RWMutex
	lastResults []check.Result
	lastStats   *check.AnalysisStats
}

type lastCheckResult struct {
	time      atomic.Value // 存储 time.Time
	duration  atomic.Int64 // 毫秒
	total     atomic.Int64
	available atomic.Int64
}

// Options 命令行参数，非空时覆盖配置文件
type Options struct {
	Version    string
	ConfigPath string
	InputFile  string
	OutputDir  string
}

// New 创建新的应用实例
func New(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		ctx:        ctx,
		cancel:     cancel,
		version:    opts.Version,
		configPath: opts.ConfigPath,
		inputFile:  opts.InputFile,
		outputDir:  opts.OutputDir,
		checkChan:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Initialize 初始化应用程序，首次运行时写入默认配置并返回 ErrConfigCreated
func (app *App) Initialize() error {
	if err := app.initConfigPath(); err != nil {
		return fmt.Errorf("初始化配置文件路径失败: %w", err)
	}

	if _, err := os.Stat(app.configPath); errors.Is(err, os.ErrNotExist) {
		if err := app.createDefaultConfig(); err != nil {
			return err
		}
		return ErrConfigCreated
	}

	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}

	closer, err := utils.SetupLogger(config.GlobalConfig.LogLevel, config.GlobalConfig.LogFile)
	if err != nil {
		slog.Warn(fmt.Sprintf("日志文件初始化失败, 仅输出到控制台: %v", err))
	}
	app.logCloser = closer
	slog.Info("socks5-check 启动", "version", app.version)

	if app.scheduled() {
		if err := app.initConfigWatcher(); err != nil {
			return fmt.Errorf("初始化配置文件监听失败: %w", err)
		}
	}

	if config.GlobalConfig.ListenPort != "" {
		if err := app.initHTTPServer(); err != nil {
			return fmt.Errorf("初始化HTTP服务器失败: %w", err)
		}
	}

	utils.BeforeExitHook = func() {
		slog.Warn("程序未正常退出，强制停止")
		app.closeLog()
	}
	utils.ShutdownHook = func() {
		slog.Warn("立即退出程序")
		if err := app.Shutdown(); err != nil {
			slog.Error("关闭应用失败", "err", err)
			return
		}
		os.Exit(0)
	}

	app.stopCh = utils.SetupSignalHandler(&check.ForceClose, &app.checking)
	return nil
}

// ErrConfigCreated 配置文件不存在，已写入默认模板
var ErrConfigCreated = errors.New("已创建默认配置文件")

// scheduled 设置了检测间隔、cron 表达式或 API 时常驻运行，否则检测一次后退出
func (app *App) scheduled() bool {
	cfg := config.GlobalConfig
	return cfg.CheckInterval > 0 || cfg.CronExpression != "" || cfg.ListenPort != ""
}

// Run 运行应用程序主循环，单次模式下返回本次检测的错误
func (app *App) Run() error {
	if !app.scheduled() {
		err := app.runCheck()
		if shutdownErr := app.Shutdown(); shutdownErr != nil {
			slog.Error("关闭应用失败", "err", shutdownErr)
		}
		return err
	}

	app.setTimer()

	if config.GlobalConfig.CronExpression != "" {
		slog.Warn("使用cron表达式，首次启动不立即执行检测")
	} else {
		go app.triggerCheck()
	}

	go func() {
		for range app.checkChan {
			go app.triggerCheck()
		}
	}()

	// 阻塞等待 stopCh 被关闭
	<-app.stopCh
	return app.Shutdown()
}

// setTimer 根据配置设置定时器
func (app *App) setTimer() {
	app.timerMu.Lock()
	defer app.timerMu.Unlock()

	if app.ticker != nil {
		close(app.done)
		app.done = make(chan struct{})
		app.ticker.Stop()
		app.ticker = nil
	}
	if app.cron != nil {
		app.cron.Stop()
		app.cron = nil
	}

	expr := config.GlobalConfig.CronExpression
	if expr != "" {
		slog.Info(fmt.Sprintf("使用cron表达式: %s", expr))
		c := cron.New()
		if _, err := c.AddFunc(expr, app.triggerCheck); err != nil {
			slog.Error(fmt.Sprintf("cron表达式 '%s' 解析失败: %v，将使用检查间隔时间", expr, err))
			app.useIntervalTimer()
			return
		}
		c.Start()
		app.cron = c
		return
	}
	app.useIntervalTimer()
}

// useIntervalTimer 使用间隔时间模式运行，未设置间隔时只响应手动触发
func (app *App) useIntervalTimer() {
	interval := app.interval()
	if interval <= 0 {
		slog.Info("未设置检测间隔，仅通过 API 触发检测")
		return
	}

	ticker := time.NewTicker(interval)
	app.ticker = ticker
	done := app.done
	go func() {
		for {
			select {
			case <-ticker.C:
				app.triggerCheck()
			case <-done:
				return
			}
		}
	}()
}

func (app *App) interval() time.Duration {
	return time.Duration(config.GlobalConfig.CheckInterval) * time.Minute
}

// TriggerCheck 供外部调用的触发检测方法
func (app *App) TriggerCheck() bool {
	if app.checking.Load() {
		slog.Warn("已有检测正在进行，忽略本次触发")
		return false
	}
	select {
	case app.checkChan <- struct{}{}:
		slog.Info("手动触发检测")
		return true
	default:
		slog.Warn("检测调度未就绪，忽略本次触发")
		return false
	}
}

// triggerCheck 内部检测方法
func (app *App) triggerCheck() {
	if err := app.runCheck(); err != nil && !errors.Is(err, errCheckRunning) {
		slog.Error(fmt.Sprintf("检测代理失败: %v", err))
	}

	app.timerMu.Lock()
	defer app.timerMu.Unlock()
	if app.ticker != nil {
		app.ticker.Reset(app.interval())
		nextCheck := time.Now().Add(app.interval())
		slog.Info(fmt.Sprintf("下次检查时间: %s", nextCheck.Format(time.DateTime)))
	} else if app.cron != nil {
		if entries := app.cron.Entries(); len(entries) > 0 {
			slog.Info(fmt.Sprintf("下次检查时间: %s", entries[0].Next.Format(time.DateTime)))
		}
	}
}

var errCheckRunning = errors.New("已有检测正在进行")

// runCheck 同一时间只允许一批检测
func (app *App) runCheck() error {
	if !app.checking.CompareAndSwap(false, true) {
		slog.Warn("已有检测正在进行，跳过本次检测")
		return errCheckRunning
	}
	defer func() {
		app.checking.Store(false)
		utils.ResetInterrupt()
		debug.FreeOSMemory()
	}()

	return app.checkProxies()
}

// checkProxies 执行代理检测并导出结果
func (app *App) checkProxies() error {
	if config.GlobalConfig.PrintProgress {
		slog.Info("启动检测任务", "进度", "显示")
	} else {
		slog.Info("启动检测任务", "进度", "隐藏")
	}

	lines, err := LoadProxyLines(config.GlobalConfig.InputFile)
	if err != nil {
		return err
	}
	if config.GlobalConfig.Deduplicate {
		var removed int
		if lines, removed = proxies.DeduplicateLines(lines); removed > 0 {
			slog.Info(fmt.Sprintf("已去除重复代理: %d 个", removed))
		}
	}

	startTime := time.Now()

	results, err := check.Check(app.ctx, lines, check.Hooks{
		ResultFunc: func(_ int, r check.Result) {
			if r.OK {
				slog.Debug("可用代理", "proxy", r.Proxy, "ip", r.IP, "country", r.Country, "latency", r.Latency)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("检测代理失败: %w", err)
	}

	slog.Info("检测完成")
	save.SaveResults(results)
	stats := check.GenerateAnalysisReport(results)

	duration := time.Since(startTime)
	utils.SendNotifyCheckResult(app.ctx, utils.CheckSummary{
		Total:     stats.Total,
		Available: stats.Available,
		UDP:       stats.UDP,
		Duration:  duration,
	})
	utils.LogMemoryUsage("检测后内存占用")

	app.recordCheck(results, stats, duration)
	return nil
}

// recordCheck 保存最近一次检测结果，供 API 查询
func (app *App) recordCheck(results []check.Result, stats *check.AnalysisStats, duration time.Duration) {
	app.resultsMu.Lock()
	app.lastResults = results
	app.lastStats = stats
	app.resultsMu.Unlock()

	app.lastCheck.time.Store(time.Now())
	app.lastCheck.duration.Store(duration.Milliseconds())
	app.lastCheck.total.Store(int64(stats.Total))
	app.lastCheck.available.Store(int64(stats.Available))
}

// LastResults 最近一次检测结果
func (app *App) LastResults() ([]check.Result, *check.AnalysisStats) {
	app.resultsMu.RLock()
	defer app.resultsMu.RUnlock()
	return app.lastResults, app.lastStats
}

// Shutdown 尝试优雅关闭所有子服务与资源，可重复调用
func (app *App) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdown()
	})
	return app.shutdownErr
}

func (app *App) shutdown() error {
	slog.Debug("开始关闭应用...")

	var lastErr error

	if app.cancel != nil {
		app.cancel()
	}

	app.timerMu.Lock()
	if app.ticker != nil {
		app.ticker.Stop()
	}
	if app.cron != nil {
		app.cron.Stop()
	}
	select {
	case <-app.done:
	default:
		close(app.done)
	}
	app.timerMu.Unlock()

	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			lastErr = err
		}
	}

	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.httpServer.Shutdown(ctx); err != nil {
			lastErr = fmt.Errorf("关闭 HTTP 服务器失败: %w", err)
			slog.Error("关闭 HTTP 服务器失败", "err", err)
		} else {
			slog.Info("HTTP 服务器关闭", "port", strings.TrimPrefix(config.GlobalConfig.ListenPort, ":"))
		}
	}

	slog.Info("应用已关闭")
	app.closeLog()
	return lastErr
}

func (app *App) closeLog() {
	if app.logCloser != nil {
		_ = app.logCloser.Close()
		app.logCloser = nil
	}
}
