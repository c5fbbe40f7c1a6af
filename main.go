package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sinspired/socks5-check/app"
	"github.com/sinspired/socks5-check/utils"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version       = "dev"
	CurrentCommit = "unknown"
)

// 命令行参数
var (
	flagConfigPath = flag.String("f", "", "配置文件路径")
	flagInputFile  = flag.String("i", "", "待检测代理列表文件，覆盖配置中的 input-file")
	flagOutputDir  = flag.String("o", "", "输出目录，覆盖配置中的 output-dir")
)

func main() {
	flag.Parse()

	// 读取配置前先使用默认日志设置
	if _, err := utils.SetupLogger("info", ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	application := app.New(app.Options{
		Version:    fmt.Sprintf("%s-%s", Version, CurrentCommit),
		ConfigPath: *flagConfigPath,
		InputFile:  *flagInputFile,
		OutputDir:  *flagOutputDir,
	})

	if err := application.Initialize(); err != nil {
		if errors.Is(err, app.ErrConfigCreated) {
			os.Exit(0)
		}
		slog.Error(fmt.Sprintf("初始化失败: %v", err))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error(fmt.Sprintf("运行失败: %v", err))
		os.Exit(1)
	}
}
