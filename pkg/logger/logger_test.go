package logger

import (
	"os"
	"path/filepath"
	"testing"

	"toeic_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLoggerLevels(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	InitLogger(cfg)
	assert.Equal(t, zap.DebugLevel, Level())

	cfg.Server.Mode = "release"
	InitLogger(cfg)
	assert.Equal(t, zap.InfoLevel, Level())

	// 显式配置优先于运行模式，无法解析时回退
	cfg.Log.Level = "warn"
	SetLevel(cfg)
	assert.Equal(t, zap.WarnLevel, Level())
	cfg.Log.Level = "loud"
	SetLevel(cfg)
	assert.Equal(t, zap.InfoLevel, Level())
}

func TestInitLoggerWritesFile(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	cfg.Log.File = filepath.Join(t.TempDir(), "app.log")
	cfg.Log.MaxSize = 1
	InitLogger(cfg)

	Log.Debug("hidden")
	Log.Info("practice generated", zap.Int("count", 10))
	_ = Log.Sync()

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"practice generated"`)
	assert.Contains(t, string(data), `"service":"toeic_backend"`)
	assert.NotContains(t, string(data), "hidden")
}
