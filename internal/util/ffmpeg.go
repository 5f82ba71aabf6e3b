package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioInfo 听力音频元数据
type AudioInfo struct {
	Duration   float64 `json:"duration"`
	Codec      string  `json:"codec"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Format     string  `json:"format"`
	Size       int64   `json:"size"`
}

// GetAudioInfo 使用ffmpeg-go库获取音频信息
func GetAudioInfo(audioPath string) (*AudioInfo, error) {
	fileInfo, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("音频文件不存在: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(audioPath)
	if err != nil {
		return nil, fmt.Errorf("获取音频信息失败: %v", err)
	}

	var result struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			Format   string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("解析音频信息失败: %v", err)
	}

	info := &AudioInfo{Format: "unknown"}
	for _, stream := range result.Streams {
		if stream.CodecType == "audio" {
			info.Codec = stream.CodecName
			info.Channels = stream.Channels
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			break
		}
	}

	info.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileInfo.Size()
	}
	info.Size = size

	if parts := strings.Split(result.Format.Format, ","); len(parts) > 0 && parts[0] != "" {
		info.Format = parts[0]
	}

	return info, nil
}

// TranscodeAudio 统一转码为 mp3 单声道 44.1kHz 128k，保证各题听力音量与格式一致
func TranscodeAudio(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("创建音频目录失败: %v", err)
	}

	return ffmpeg.Input(srcPath).
		Output(dstPath, ffmpeg.KwArgs{
			"acodec": "libmp3lame",
			"ac":     "1",
			"ar":     "44100",
			"b:a":    "128k",
			"af":     "loudnorm",
		}).
		OverWriteOutput().
		Run()
}

// GetFFmpegVersion 获取FFmpeg版本信息，用于检查FFmpeg是否正确安装
func GetFFmpegVersion() (string, error) {
	// ffmpeg-go 没有单独执行命令的接口，这里直接调用
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("获取FFmpeg版本失败，请确保FFmpeg已正确安装: %v, %s", err, errOut.String())
	}

	return out.String(), nil
}
