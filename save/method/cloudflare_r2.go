package method

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sinspired/socks5-check/config"
)

var (
	r2MaxRetries    = 3
	r2RetryInterval = 2 * time.Second
)

// KVPayload 定义上传到R2的数据结构
type KVPayload struct {
	Filename string `json:"filename"`
	Value    string `json:"value"`
}

// R2Uploader 通过 Cloudflare Worker 写入 R2 存储
type R2Uploader struct {
	client    *http.Client
	workerURL string
	token     string
}

// NewR2Uploader 创建新的R2上传器
func NewR2Uploader() *R2Uploader {
	return &R2Uploader{
		client:    &http.Client{Timeout: 30 * time.Second},
		workerURL: strings.TrimRight(config.GlobalConfig.WorkerURL, "/"),
		token:     config.GlobalConfig.WorkerToken,
	}
}

// ValiR2Config 验证R2配置
func ValiR2Config() error {
	if config.GlobalConfig.WorkerURL == "" {
		return fmt.Errorf("worker url未配置")
	}
	if config.GlobalConfig.WorkerToken == "" {
		return fmt.Errorf("worker token未配置")
	}
	return nil
}

// Upload 执行上传操作
func (r *R2Uploader) Upload(data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}
	if r.workerURL == "" || r.token == "" {
		return fmt.Errorf("worker配置不完整")
	}

	jsonData, err := json.Marshal(KVPayload{
		Filename: filename,
		Value:    string(data),
	})
	if err != nil {
		return fmt.Errorf("JSON编码失败: %w", err)
	}

	var lastErr error
	for attempt := range r2MaxRetries {
		if err := r.doUpload(jsonData); err != nil {
			lastErr = err
			slog.Error(fmt.Sprintf("R2上传失败(尝试 %d/%d) %v", attempt+1, r2MaxRetries, err))
			if attempt < r2MaxRetries-1 {
				time.Sleep(r2RetryInterval)
			}
			continue
		}
		slog.Info("R2上传成功", "filename", filename)
		return nil
	}

	return fmt.Errorf("上传失败，已重试%d次: %w", r2MaxRetries, lastErr)
}

// doUpload 执行单次上传
func (r *R2Uploader) doUpload(jsonData []byte) error {
	target := fmt.Sprintf("%s/storage?token=%s", r.workerURL, url.QueryEscape(r.token))
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp, http.StatusOK, http.StatusOK+1)
}
