package app

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sinspired/socks5-check/check"
	"github.com/sinspired/socks5-check/config"
	"github.com/sinspired/socks5-check/save"
	"github.com/sinspired/socks5-check/save/method"
	"github.com/sinspired/socks5-check/utils"
)

const defaultLogLines = 200

// initHTTPServer 初始化HTTP服务器
func (app *App) initHTTPServer() error {
	if config.GlobalConfig.APIKey == "" {
		if apiKey := os.Getenv("API_KEY"); apiKey != "" {
			config.GlobalConfig.APIKey = apiKey
		} else {
			config.GlobalConfig.APIKey = utils.GenerateRandomString(10)
			slog.Warn("未设置api-key，已随机生成", "api-key", config.GlobalConfig.APIKey)
		}
	}

	router, err := app.newRouter()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              config.GlobalConfig.ListenPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.httpServer = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("HTTP服务器启动失败: %v", err))
		}
	}()
	slog.Info("HTTP服务器启动", "port", config.GlobalConfig.ListenPort)

	return nil
}

// newRouter 全部路由都需要 X-API-Key
func (app *App) newRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	saver, err := method.NewLocalSaver()
	if err != nil {
		return nil, fmt.Errorf("获取http监听目录失败: %w", err)
	}

	router.Use(app.authMiddleware())

	// 导出文件
	router.GET("/"+save.CSVName, func(c *gin.Context) {
		c.File(filepath.Join(saver.OutputPath, save.CSVName))
	})
	router.GET("/"+save.TXTName, func(c *gin.Context) {
		c.File(filepath.Join(saver.OutputPath, save.TXTName))
	})

	api := router.Group("/api")
	{
		api.GET("/status", app.getStatus)
		api.GET("/results", app.getResults)
		api.GET("/stats", app.getStats)
		api.POST("/check", app.triggerCheckHandler)
		api.POST("/force-close", app.forceCloseHandler)
		api.GET("/logs", app.getLogs)
		api.GET("/version", app.getVersion)
	}
	return router, nil
}

// authMiddleware API认证中间件
func (app *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		// 动态获取apikey
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(config.GlobalConfig.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的API密钥"})
			return
		}
		c.Next()
	}
}

// getStatus 获取应用状态
func (app *App) getStatus(c *gin.Context) {
	lastCheck := gin.H{}
	if t, ok := app.lastCheck.time.Load().(time.Time); ok && !t.IsZero() {
		lastCheck = gin.H{
			"time":      t.Format(time.DateTime),
			"duration":  app.lastCheck.duration.Load(),
			"total":     app.lastCheck.total.Load(),
			"available": app.lastCheck.available.Load(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"checking":   app.checking.Load(),
		"proxyCount": check.ProxyCount.Load(),
		"available":  check.Available.Load(),
		"progress":   check.Progress.Load(),
		"lastCheck":  lastCheck,
	})
}

// getResults 最近一次检测结果，?ok=true 只返回可用代理
func (app *App) getResults(c *gin.Context) {
	results, _ := app.LastResults()
	if okOnly, _ := strconv.ParseBool(c.Query("ok")); okOnly {
		results = save.WorkingProxies(results)
	}
	if results == nil {
		results = []check.Result{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"results": results,
	})
}

// getStats 最近一次检测统计
func (app *App) getStats(c *gin.Context) {
	_, stats := app.LastResults()
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无检测结果"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// triggerCheckHandler 手动触发检测
func (app *App) triggerCheckHandler(c *gin.Context) {
	if !app.TriggerCheck() {
		c.JSON(http.StatusConflict, gin.H{"error": "已有检测正在进行"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已触发检测"})
}

// forceCloseHandler 结束正在进行的检测
func (app *App) forceCloseHandler(c *gin.Context) {
	if !app.checking.Load() {
		c.JSON(http.StatusOK, gin.H{"message": "当前没有正在进行的检测"})
		return
	}
	check.ForceClose.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "已强制关闭"})
}

// getLogs 读取日志文件最后若干行，?lines= 指定行数
func (app *App) getLogs(c *gin.Context) {
	logPath := config.GlobalConfig.LogFile
	if logPath == "" {
		c.JSON(http.StatusOK, gin.H{"logs": []string{}})
		return
	}
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		c.JSON(http.StatusOK, gin.H{"logs": []string{}})
		return
	}

	n := defaultLogLines
	if v, err := strconv.Atoi(c.Query("lines")); err == nil && v > 0 {
		n = min(v, 5000)
	}
	lines, err := ReadLastNLines(logPath, n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("读取日志失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines})
}

// getVersion 获取版本号
func (app *App) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": app.version})
}

// ReadLastNLines 环形缓冲区读取文件最后 n 行
func ReadLastNLines(filePath string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	ring := make([]string, n)
	count := 0

	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if count <= n {
		return ring[:count], nil
	}

	// 调整顺序，从最旧到最新
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}
