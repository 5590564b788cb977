package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"JamFM/logger"
)

const downloadTimeout = 30 * time.Second

// Transcoder produces an Opus artifact at outputPath from a raw audio URL.
type Transcoder interface {
	Transcode(ctx context.Context, rawAudioURL, outputPath string) error
}

// FFmpegTranscoder implements Transcoder by downloading the raw audio and
// shelling out to ffmpeg.
type FFmpegTranscoder struct {
	ffmpegPath string
	bitrate    string
	httpClient *http.Client
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
func NewFFmpegTranscoder(ffmpegPath, bitrate string) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		ffmpegPath: ffmpegPath,
		bitrate:    bitrate,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
}

// Transcode downloads the source audio into a scratch directory, encodes it
// to Opus, and renames the result into place so a partial encode is never
// visible at outputPath.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, rawAudioURL, outputPath string) error {
	tmpDir, err := os.MkdirTemp("", "jamfm-opus-")
	if err != nil {
		return fmt.Errorf("%w: create scratch dir: %v", ErrTranscodeFailed, err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input.audio")
	encodedPath := filepath.Join(tmpDir, "output.opus")

	if err := t.download(ctx, rawAudioURL, inputPath); err != nil {
		return err
	}

	if err := t.runFFmpeg(ctx, inputPath, encodedPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("%w: create cache dir: %v", ErrTranscodeFailed, err)
	}
	if err := os.Rename(encodedPath, outputPath); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		if copyErr := copyFile(encodedPath, outputPath); copyErr != nil {
			return fmt.Errorf("%w: move artifact into cache: %v", ErrTranscodeFailed, copyErr)
		}
	}
	return nil
}

func (t *FFmpegTranscoder) download(ctx context.Context, url, destination string) error {
	logger.Info("downloading raw audio", logger.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	req.Header.Set("User-Agent", "jamfm-opus-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d from %s", ErrUpstreamFetch, resp.StatusCode, url)
	}

	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	return nil
}

func (t *FFmpegTranscoder) runFFmpeg(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:a", "libopus",
		"-b:a", t.bitrate,
		"-f", "opus",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("transcoding to opus",
		logger.String("input", inputPath),
		logger.String("bitrate", t.bitrate))

	if err := cmd.Run(); err != nil {
		logger.Error("ffmpeg failed",
			logger.ErrorField(err),
			logger.String("stderr", stderr.String()))
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
