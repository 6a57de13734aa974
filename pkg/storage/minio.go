// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"monet-probing/internal/config"
	"monet-probing/internal/model"
	"monet-probing/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// TranscriptObjectName 返回一次会话的对话记录在存储桶中的路径。
func TranscriptObjectName(key string, sessionNo int) string {
	return fmt.Sprintf("transcripts/%s/session-%d.json", key, sessionNo)
}

// Transcript 是归档到对象存储的一次完整会话。
type Transcript struct {
	Key        string              `json:"key"`
	SessionNo  int                 `json:"session_no"`
	ArchivedAt time.Time           `json:"archived_at"`
	Messages   []model.ChatMessage `json:"messages"`
}

// PutTranscript 将会话记录以 JSON 形式写入存储桶，同名对象会被覆盖。
func PutTranscript(ctx context.Context, bucketName string, t Transcript) error {
	if MinioClient == nil {
		return errors.New("minio client not initialised")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	objectName := TranscriptObjectName(t.Key, t.SessionNo)
	_, err = MinioClient.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		log.Errorf("上传会话记录到 MinIO 失败, Object: %s, Error: %v", objectName, err)
		return err
	}
	return nil
}

// GetPresignedURL generates a presigned URL for a given object.
func GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	if MinioClient == nil {
		return "", errors.New("minio client not initialised")
	}
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}

// TranscriptStore 把全局客户端和存储桶绑定在一起，供持久化流程使用。
type TranscriptStore struct {
	Bucket string
}

func (s TranscriptStore) ArchiveTranscript(ctx context.Context, key string, sessionNo int, messages []model.ChatMessage) error {
	return PutTranscript(ctx, s.Bucket, Transcript{
		Key:        key,
		SessionNo:  sessionNo,
		ArchivedAt: time.Now(),
		Messages:   messages,
	})
}

// TranscriptURL 返回会话记录的临时下载地址。
func (s TranscriptStore) TranscriptURL(key string, sessionNo int, expiry time.Duration) (string, error) {
	return GetPresignedURL(s.Bucket, TranscriptObjectName(key, sessionNo), expiry)
}
