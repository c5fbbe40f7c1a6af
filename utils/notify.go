package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sinspired/socks5-check/config"
)

const notifyTimeout = 10 * time.Second // 通知请求超时时间

// 失败重试，测试中可调小
var (
	notifyMaxRetries = 3
	notifyRetryDelay = 2 * time.Second
)

// NotifyRequest Apprise API 请求体
type NotifyRequest struct {
	URLs   string `json:"urls"`
	Body   string `json:"body"`
	Title  string `json:"title"`
	Format string `json:"format"` // text、markdown或html
}

// CheckSummary 通知正文所需的检测概况
type CheckSummary struct {
	Total     int
	Available int
	UDP       int
	Duration  time.Duration
}

// Notify 发送单次通知请求
func Notify(ctx context.Context, req NotifyRequest) error {
	apiServer := config.GlobalConfig.AppriseAPIServer
	if apiServer == "" {
		return fmt.Errorf("通知服务器地址未配置")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("构建请求体失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiServer, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("通知失败, 状态码: %d, 响应: %s", resp.StatusCode, strings.TrimSpace(string(bs)))
	}
	return nil
}

// sendWithRetry 带重试逻辑的通知发送
func sendWithRetry(ctx context.Context, req NotifyRequest, name string) error {
	var lastErr error
	for attempt := range notifyMaxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(notifyRetryDelay):
			}
		}
		if lastErr = Notify(ctx, req); lastErr == nil {
			slog.Info("通知发送成功", "目标", name)
			return nil
		}
		slog.Debug("通知发送失败", "目标", name, "次数", attempt+1, "错误", lastErr)
	}
	slog.Error("通知发送最终失败", "目标", name, "错误", lastErr)
	return lastErr
}

// broadcastNotify 广播通知到所有接收者，返回失败的接收者数量
func broadcastNotify(ctx context.Context, title, body string) int {
	if config.GlobalConfig.AppriseAPIServer == "" {
		return 0
	}
	if len(config.GlobalConfig.RecipientURL) == 0 {
		slog.Error("请配置通知目标: recipient-url")
		return 0
	}

	failed := 0
	for _, u := range config.GlobalConfig.RecipientURL {
		name := strings.SplitN(u, "://", 2)[0]
		req := NotifyRequest{
			URLs:   u,
			Body:   body,
			Title:  title,
			Format: "text",
		}
		if err := sendWithRetry(ctx, req, name); err != nil {
			failed++
		}
	}
	return failed
}

// GetCurrentTime 返回当前时间字符串
func GetCurrentTime() string {
	return time.Now().Format(time.DateTime)
}

// FormatCheckResult 通知正文
func FormatCheckResult(s CheckSummary) string {
	return fmt.Sprintf("✅ 可用代理：%d/%d\n📡 支持 UDP：%d\n⏱ 耗时：%s\n🕒 %s",
		s.Available, s.Total, s.UDP, FormatDuration(s.Duration), GetCurrentTime())
}

// SendNotifyCheckResult 发送检测结果通知
func SendNotifyCheckResult(ctx context.Context, s CheckSummary) {
	broadcastNotify(ctx, config.GlobalConfig.NotifyTitle, FormatCheckResult(s))
}
