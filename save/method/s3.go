package method

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sinspired/socks5-check/config"
)

// ValiS3Config 验证 S3 配置
func ValiS3Config() error {
	cfg := config.GlobalConfig
	if cfg.S3Endpoint == "" {
		return fmt.Errorf("s3 endpoint未配置")
	}
	if cfg.S3AccessID == "" || cfg.S3SecretKey == "" {
		return fmt.Errorf("s3 访问密钥未配置")
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("s3 bucket未配置")
	}
	return nil
}

// bucketLookup 将配置转换为 minio 的寻址方式
func bucketLookup(s string) minio.BucketLookupType {
	switch strings.ToLower(s) {
	case "path":
		return minio.BucketLookupPath
	case "dns":
		return minio.BucketLookupDNS
	default:
		return minio.BucketLookupAuto
	}
}

// S3Uploader 上传到 S3 兼容存储 (MinIO、R2 S3 API 等)
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// NewS3Uploader 根据全局配置创建客户端，endpoint 可带 http(s):// 前缀
func NewS3Uploader() (*S3Uploader, error) {
	cfg := config.GlobalConfig
	endpoint := cfg.S3Endpoint
	secure := cfg.S3UseSSL
	if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, secure = after, true
	} else if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, secure = after, false
	}
	endpoint = strings.TrimRight(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.S3AccessID, cfg.S3SecretKey, ""),
		Secure:       secure,
		BucketLookup: bucketLookup(cfg.S3BucketLookup),
	})
	if err != nil {
		return nil, fmt.Errorf("创建 S3 客户端失败: %w", err)
	}
	return &S3Uploader{client: client, bucket: cfg.S3Bucket}, nil
}

// Upload 覆盖写入 bucket/filename
func (s *S3Uploader) Upload(data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := s.client.PutObject(ctx, s.bucket, filename, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(filename)})
	if err != nil {
		return fmt.Errorf("S3上传失败: %w", err)
	}
	slog.Info("S3上传成功", "bucket", s.bucket, "filename", filename, "size", info.Size)
	return nil
}

// UploadToS3 上传到 S3 的入口函数
func UploadToS3(data []byte, filename string) error {
	uploader, err := NewS3Uploader()
	if err != nil {
		return err
	}
	return uploader.Upload(data, filename)
}
