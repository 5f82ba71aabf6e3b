package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimeAudio       = "audio/"
	MimeImage       = "image/"
	MimeOctetStream = "application/octet-stream"
	MimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	AllowedAudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg"}
	AllowedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
