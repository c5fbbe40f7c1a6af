package utils

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// exitGrace 收到退出信号后等待清理的最长时间
const exitGrace = 5 * time.Second

var interrupted atomic.Bool

// ShutdownHook 收到退出信号时调用，BeforeExitHook 在 os.Exit 前调用
var (
	BeforeExitHook func()
	ShutdownHook   func()
)

// ResetInterrupt 一批检测结束后调用，下一批检测时首次 Ctrl+C 仍只结束检测
func ResetInterrupt() {
	interrupted.Store(false)
}

// SetupSignalHandler 检测进行中首次 SIGINT/SIGTERM 只结束本批检测，再次收到则退出
// SIGHUP 只结束本批检测，程序继续运行
func SetupSignalHandler(forceClose *atomic.Bool, checking *atomic.Bool) <-chan struct{} {
	slog.Debug("设置信号处理器")

	stop := make(chan struct{})

	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	go func() {
		for sig := range exitCh {
			slog.Debug("收到中断信号", "sig", sig)

			if checking.Load() && interrupted.CompareAndSwap(false, true) {
				forceClose.Store(true)
				slog.Warn("已发送停止检测信号，正在等待结果收集。再次按 Ctrl+C 将立即退出程序")
				continue
			}

			if ShutdownHook != nil {
				ShutdownHook()
			}
			select {
			case <-stop:
			default:
				close(stop)
			}

			time.AfterFunc(exitGrace, func() {
				if BeforeExitHook != nil {
					BeforeExitHook()
				}
				os.Exit(0)
			})
		}
	}()

	go func() {
		for sig := range hupCh {
			slog.Info("收到 HUP 信号", "sig", sig)
			if checking.Load() {
				forceClose.Store(true)
				slog.Info("已设置强制关闭标志，本批检测将结束，程序继续运行")
			}
		}
	}()

	return stop
}
