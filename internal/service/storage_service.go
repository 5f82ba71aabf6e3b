package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 题目媒体与聊天附件的存储后端
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetURL(key string) string
}

type LocalStorageProvider struct {
	Root string
}

func (p *LocalStorageProvider) target(key string) (string, error) {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	return dst, nil
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.target(key)
	if err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *LocalStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return p.Upload(ctx, key, src, -1, contentType)
}

func (p *LocalStorageProvider) Delete(ctx context.Context, key string) error {
	return os.Remove(filepath.Join(p.Root, filepath.FromSlash(key)))
}

func (p *LocalStorageProvider) GetURL(key string) string {
	return "/uploads/" + key
}

type MinioStorageProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, key, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(key string) string {
	return "/" + p.Bucket + "/" + key
}

type OSSStorageProvider struct {
	Endpoint string
	Bucket   *oss.Bucket
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Endpoint: cfg.OSSEndpoint, Bucket: bucket}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if err := p.Bucket.PutObject(key, reader, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	if err := p.Bucket.PutObjectFromFile(key, localPath, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Bucket.DeleteObject(key)
}

func (p *OSSStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Bucket.BucketName, p.Endpoint, key)
}

type StorageService struct {
	Provider       StorageProvider
	TranscodeAudio bool
}

func NewStorageService(cfg *config.Config) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("MinIO init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("OSS init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Root: cfg.Storage.LocalPath}
	}

	transcode := cfg.Storage.TranscodeAudio
	if transcode {
		if _, err := util.GetFFmpegVersion(); err != nil {
			logger.Log.Warn("ffmpeg not available, audio transcoding disabled", zap.Error(err))
			transcode = false
		}
	}

	return &StorageService{Provider: provider, TranscodeAudio: transcode}
}

func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.Provider.Upload(ctx, key, reader, size, contentType)
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	return s.Provider.Delete(ctx, key)
}

// MediaKind 题目媒体类型
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// SaveQuestionMedia 校验并保存题目图片或听力音频，返回访问地址
// 开启 transcode_audio 时音频统一转为 mp3 并做响度归一
func (s *StorageService) SaveQuestionMedia(ctx context.Context, part int, kind MediaKind, fh *multipart.FileHeader) (string, error) {
	allowedExt := util.AllowedImageExtensions
	allowedMime := []string{util.MimeImage}
	if kind == MediaAudio {
		allowedExt = util.AllowedAudioExtensions
		allowedMime = []string{util.MimeAudio, "application/ogg", util.MimeOctetStream, "video/mp4"}
	}
	if !util.HasAllowedExtension(fh.Filename, allowedExt) {
		return "", fmt.Errorf("%w: unsupported %s file %s", util.ErrInvalidQuestion, kind, fh.Filename)
	}

	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	mimeType, err := util.ValidateMimeType(file, allowedMime)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrInvalidQuestion, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	key := path.Join("questions", fmt.Sprintf("part%d", part), string(kind), model.GenerateUUID()+ext)

	if kind == MediaAudio && s.TranscodeAudio {
		return s.saveTranscoded(ctx, key, file)
	}
	return s.Provider.Upload(ctx, key, file, fh.Size, mimeType)
}

func (s *StorageService) saveTranscoded(ctx context.Context, key string, src io.Reader) (string, error) {
	tmpDir, err := os.MkdirTemp("", "toeic-audio-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	rawPath := filepath.Join(tmpDir, "raw"+filepath.Ext(key))
	raw, err := os.Create(rawPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(raw, src); err != nil {
		raw.Close()
		return "", err
	}
	raw.Close()

	outPath := filepath.Join(tmpDir, "out.mp3")
	if err := util.TranscodeAudio(rawPath, outPath); err != nil {
		logger.Log.Warn("Audio transcode failed, storing original", zap.String("key", key), zap.Error(err))
		return s.Provider.UploadFile(ctx, key, rawPath, "audio/mpeg")
	}

	if info, err := util.GetAudioInfo(outPath); err == nil {
		logger.Log.Debug("Audio transcoded", zap.String("key", key), zap.Float64("duration", info.Duration))
	}

	mp3Key := strings.TrimSuffix(key, filepath.Ext(key)) + ".mp3"
	return s.Provider.UploadFile(ctx, mp3Key, outPath, "audio/mpeg")
}

// SaveChatFile 聊天附件，图片与普通文件分目录存放
func (s *StorageService) SaveChatFile(ctx context.Context, convID string, fh *multipart.FileHeader) (string, string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	mimeType, err := util.DetectMimeType(file)
	if err != nil {
		return "", "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}

	msgType := model.MessageFile
	if util.IsImage(mimeType) {
		msgType = model.MessageImage
	}
	key := path.Join("chat", convID, model.GenerateUUID()+strings.ToLower(filepath.Ext(fh.Filename)))
	url, err := s.Provider.Upload(ctx, key, file, fh.Size, mimeType)
	return url, msgType, err
}
