package method

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/sinspired/socks5-check/config"
)

var (
	webdavMaxRetries = 3
	webdavRetryDelay = 2 * time.Second
)

// WebDAVUploader 处理 WebDAV 上传的结构体
type WebDAVUploader struct {
	client   *http.Client
	baseURL  string
	username string
	password string
}

// NewWebDAVUploader 创建新的 WebDAV 上传器
func NewWebDAVUploader() (*WebDAVUploader, error) {
	webdavURL := config.GlobalConfig.WebDAVURL
	if _, err := url.Parse(webdavURL); err != nil {
		return nil, fmt.Errorf("WebDAV URL 配置错误: %w", err)
	}

	return &WebDAVUploader{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  webdavURL,
		username: config.GlobalConfig.WebDAVUsername,
		password: config.GlobalConfig.WebDAVPassword,
	}, nil
}

// ValiWebDAVConfig 验证WebDAV配置
func ValiWebDAVConfig() error {
	if config.GlobalConfig.WebDAVURL == "" {
		return fmt.Errorf("webdav URL未配置")
	}
	if config.GlobalConfig.WebDAVUsername == "" {
		return fmt.Errorf("webdav 用户名未配置")
	}
	if config.GlobalConfig.WebDAVPassword == "" {
		return fmt.Errorf("webdav 密码未配置")
	}
	return nil
}

// Upload 执行上传操作
func (w *WebDAVUploader) Upload(data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}
	if w.baseURL == "" {
		return fmt.Errorf("webdav URL未配置")
	}

	return w.uploadWithRetry(data, filename)
}

// uploadWithRetry 带重试机制的上传
func (w *WebDAVUploader) uploadWithRetry(data []byte, filename string) error {
	var lastErr error

	for attempt := range webdavMaxRetries {
		if err := w.doUpload(data, filename); err != nil {
			lastErr = err
			slog.Error(fmt.Sprintf("webdav上传失败(尝试 %d/%d) %v", attempt+1, webdavMaxRetries, err))
			if attempt < webdavMaxRetries-1 {
				time.Sleep(webdavRetryDelay)
			}
			continue
		}
		slog.Info("webdav上传成功", "filename", filename)
		return nil
	}

	return fmt.Errorf("webdav上传失败，已重试%d次: %w", webdavMaxRetries, lastErr)
}

// doUpload 执行单次上传
func (w *WebDAVUploader) doUpload(data []byte, filename string) error {
	req, err := w.createRequest(data, filename)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp, 200, 300)
}

// createRequest 创建HTTP请求
func (w *WebDAVUploader) createRequest(data []byte, filename string) (*http.Request, error) {
	target := strings.TrimRight(w.baseURL, "/") + "/" + url.PathEscape(filename)

	req, err := http.NewRequest(http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.SetBasicAuth(w.username, w.password)
	req.Header.Set("Content-Type", contentType(filename))
	return req, nil
}

// contentType 根据扩展名推断，未知时按纯文本上传
func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".yaml", ".yml":
		return "application/x-yaml"
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "text/plain; charset=utf-8"
}

// checkResponse 状态码不在 [low, high) 时返回响应内容
func checkResponse(resp *http.Response, low, high int) error {
	if resp.StatusCode < low || resp.StatusCode >= high {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("读取响应失败(状态码: %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("上传失败(状态码: %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
