// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wet-coach-go/internal/config"
	"wet-coach-go/pkg/log"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(ctx context.Context, cfg config.MinIOConfig) error {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	MinioClient = client
	log.Infof("MinIO 客户端初始化成功, bucket: %s", cfg.BucketName)
	return nil
}

// TranscriptObjectName 返回会话转写稿在存储桶中的对象名。
func TranscriptObjectName(conversationID string) string {
	return fmt.Sprintf("transcripts/%s.md", conversationID)
}

// TranscriptStore 在对象存储中保存 markdown 格式的会话转写稿。
type TranscriptStore struct {
	client *minio.Client
	bucket string
}

// NewTranscriptStore 创建一个新的 TranscriptStore。
func NewTranscriptStore(client *minio.Client, bucket string) *TranscriptStore {
	return &TranscriptStore{client: client, bucket: bucket}
}

// PutTranscript 覆盖写入会话的转写稿。
func (s *TranscriptStore) PutTranscript(ctx context.Context, conversationID string, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, TranscriptObjectName(conversationID),
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/markdown; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("failed to put transcript: %w", err)
	}
	return nil
}

// PresignedURL 生成转写稿的临时下载链接。
func (s *TranscriptStore) PresignedURL(ctx context.Context, conversationID string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, TranscriptObjectName(conversationID), expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
