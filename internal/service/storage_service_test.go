package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func newLocalStorage(t *testing.T) (*StorageService, string) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Type = util.StorageLocal
	cfg.Storage.LocalPath = root
	return NewStorageService(cfg), root
}

func TestSaveQuestionMediaLocal(t *testing.T) {
	svc, root := newLocalStorage(t)

	url, err := svc.SaveQuestionMedia(context.Background(), 1, MediaImage, fileHeader(t, "Photo.PNG", pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/questions/part1/image/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(root, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, err = svc.SaveQuestionMedia(context.Background(), 1, MediaImage, fileHeader(t, "photo.exe", pngHeader))
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	// 扩展名正确但内容不是图片
	_, err = svc.SaveQuestionMedia(context.Background(), 1, MediaImage, fileHeader(t, "fake.png", []byte("plain text")))
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)
}

func TestSaveChatFileLocal(t *testing.T) {
	svc, root := newLocalStorage(t)

	url, msgType, err := svc.SaveChatFile(context.Background(), "conv-1", fileHeader(t, "notes.txt", []byte("vocabulary list")))
	require.NoError(t, err)
	assert.Equal(t, model.MessageFile, msgType)
	assert.True(t, strings.HasPrefix(url, "/uploads/chat/conv-1/"))

	url, msgType, err = svc.SaveChatFile(context.Background(), "conv-1", fileHeader(t, "p.png", pngHeader))
	require.NoError(t, err)
	assert.Equal(t, model.MessageImage, msgType)

	key := strings.TrimPrefix(url, "/uploads/")
	require.FileExists(t, filepath.Join(root, key))
	require.NoError(t, svc.Delete(context.Background(), key))
	assert.NoFileExists(t, filepath.Join(root, key))
}
