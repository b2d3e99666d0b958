package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// Runner executes an external tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, lastLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// FFmpeg probes and encodes video through the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	runner  Runner

	mu     sync.Mutex
	cancel map[int]context.CancelFunc
	nextID int
}

var _ repository.IMediaProcessor = (*FFmpeg)(nil)

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return NewFFmpegWithRunner(ffmpegPath, ffprobePath, execRunner{})
}

func NewFFmpegWithRunner(ffmpegPath, ffprobePath string, runner Runner) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpeg: ffmpegPath, ffprobe: ffprobePath, runner: runner, cancel: make(map[int]context.CancelFunc)}
}

func (f *FFmpeg) Available() bool {
	for _, bin := range []string{f.ffmpeg, f.ffprobe} {
		if _, err := f.runner.LookPath(bin); err != nil {
			logger.GetLogger().WithField("binary", bin).Debug("Media tool not found")
			return false
		}
	}
	return true
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*model.VideoMetadata, error) {
	out, err := f.run(ctx, f.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, err
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return nil, fmt.Errorf("no video stream in %s", path)
	}
	meta := &model.VideoMetadata{Width: parsed.Streams[0].Width, Height: parsed.Streams[0].Height}
	if parsed.Format.Duration != "" {
		secs, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
		}
		meta.Duration = time.Duration(secs * float64(time.Second))
	}
	return meta, nil
}

func (f *FFmpeg) Transcode(ctx context.Context, src, dst string, width, height int, opts model.OptimizationOptions) error {
	_, err := f.run(ctx, f.ffmpeg, transcodeArgs(src, dst, width, height, opts)...)
	return err
}

func transcodeArgs(src, dst string, width, height int, opts model.OptimizationOptions) []string {
	args := []string{"-y", "-v", "error", "-i", src,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
	}
	if opts.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FrameRate))
	}
	if opts.BitrateKbps > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.BitrateKbps))
	}
	switch opts.ContainerFormat {
	case model.ContainerMP4:
		args = append(args, "-c:v", "libx264", "-crf", strconv.Itoa(crf(opts.QualityFactor, 51)),
			"-c:a", "aac", "-movflags", "+faststart", "-f", "mp4")
	default:
		args = append(args, "-c:v", "libvpx-vp9", "-crf", strconv.Itoa(crf(opts.QualityFactor, 63)),
			"-c:a", "libopus", "-f", "webm")
	}
	return append(args, dst)
}

// crf maps a 0..1 quality factor onto an encoder's constant rate factor scale.
func crf(quality float64, worst int) int {
	if quality <= 0 || quality > 1 {
		quality = 0.8
	}
	return int(math.Round((1 - quality) * float64(worst)))
}

func (f *FFmpeg) Frame(ctx context.Context, src string, atSeconds float64, maxWidth, maxHeight int) ([]byte, error) {
	out, err := f.run(ctx, f.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", maxWidth, maxHeight),
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no frame decoded at %.3fs of %s", atSeconds, src)
	}
	return out, nil
}

// Cancel kills every process started by this instance that is still running.
func (f *FFmpeg) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, cancel := range f.cancel {
		cancel()
		delete(f.cancel, id)
	}
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.cancel[id] = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.cancel, id)
		f.mu.Unlock()
		cancel()
	}()
	return f.runner.Run(ctx, name, args...)
}

func lastLine(s string) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if i := bytes.LastIndexByte([]byte(s), '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
