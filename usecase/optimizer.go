package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

const (
	suggestMaxWidth      = 1920
	suggestMaxHeight     = 1080
	largeFileBytes       = 50 * 1024 * 1024
	minBitrateKbps       = 500
	maxBitrateKbps       = 5000
	longVideo            = 10 * time.Minute
	mediumVideo          = 5 * time.Minute
	thumbnailMaxWidth    = 320
	thumbnailMaxHeight   = 240
	thumbnailJPEGQuality = 80
	// seconds kept between a thumbnail offset and the end of the video
	endFrameMargin = 0.1
)

// IOptimizer re-encodes user supplied videos into smaller derivatives.
type IOptimizer interface {
	Supported() bool
	Analyze(ctx context.Context, file model.SourceFile) (*dto.AnalyzeResponse, error)
	Optimize(ctx context.Context, file model.SourceFile, opts model.OptimizationOptions) (*model.OptimizationJob, error)
	Thumbnail(ctx context.Context, file model.SourceFile, atSeconds float64) ([]byte, error)
	// Close stops any running job and removes its temporary output.
	Close()
}

type optimizer struct {
	processor repository.IMediaProcessor
	tempDir   string
	busy      atomic.Bool

	mu    sync.Mutex
	temps map[string]struct{}
}

func NewOptimizer(processor repository.IMediaProcessor, tempDir string) IOptimizer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &optimizer{processor: processor, tempDir: tempDir, temps: make(map[string]struct{})}
}

func (o *optimizer) Supported() bool {
	return o.processor != nil && o.processor.Available()
}

func (o *optimizer) Analyze(ctx context.Context, file model.SourceFile) (*dto.AnalyzeResponse, error) {
	if !o.Supported() {
		return nil, model.ErrOptimizerUnsupported
	}
	meta, err := o.processor.Probe(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", file.Name, err)
	}
	return &dto.AnalyzeResponse{
		Metadata:  *meta,
		DurationS: meta.Duration.Seconds(),
		Suggested: SuggestOptions(*meta, file.Size),
	}, nil
}

// SuggestOptions derives encoder settings from source metadata and size.
func SuggestOptions(meta model.VideoMetadata, size int64) model.OptimizationOptions {
	opts := model.OptimizationOptions{
		MaxWidth:        min(meta.Width, suggestMaxWidth),
		MaxHeight:       min(meta.Height, suggestMaxHeight),
		QualityFactor:   0.8,
		FrameRate:       30,
		ContainerFormat: model.ContainerWebM,
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = suggestMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = suggestMaxHeight
	}
	if size > largeFileBytes {
		opts.QualityFactor = 0.7
	}
	if meta.Duration > mediumVideo {
		opts.FrameRate = 24
	}

	w, h := FitDimensions(meta.Width, meta.Height, opts.MaxWidth, opts.MaxHeight)
	// roughly one kilobit per thousand pixels per second of output
	bitrate := float64(w*h) / 1000
	if meta.Duration > longVideo {
		bitrate *= 0.8
	}
	opts.BitrateKbps = clampInt(int(bitrate), minBitrateKbps, maxBitrateKbps)
	return opts
}

// FitDimensions scales w×h down to fit maxW×maxH keeping the aspect ratio.
// Sources are never upscaled and results are rounded down to even sizes.
func FitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return evenDown(maxW), evenDown(maxH)
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	return evenDown(int(float64(w) * scale)), evenDown(int(float64(h) * scale))
}

func (o *optimizer) acquire() error {
	if !o.Supported() {
		return model.ErrOptimizerUnsupported
	}
	if !o.busy.CompareAndSwap(false, true) {
		return model.ErrOptimizerBusy
	}
	return nil
}

func (o *optimizer) Optimize(ctx context.Context, file model.SourceFile, opts model.OptimizationOptions) (*model.OptimizationJob, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.busy.Store(false)

	if opts.ContainerFormat == "" {
		opts.ContainerFormat = model.ContainerWebM
	}
	meta, err := o.processor.Probe(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", file.Name, err)
	}
	width, height := FitDimensions(meta.Width, meta.Height, opts.MaxWidth, opts.MaxHeight)

	dst := filepath.Join(o.tempDir, fmt.Sprintf("optimized-%d.%s", time.Now().UnixNano(), opts.ContainerFormat))
	o.track(dst)
	defer o.release(dst)

	if err := o.processor.Transcode(ctx, file.Path, dst, width, height, opts); err != nil {
		return nil, fmt.Errorf("transcode %s: %w", file.Name, err)
	}
	blob, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read optimized output: %w", err)
	}

	originalSize := file.Size
	if originalSize <= 0 {
		if st, statErr := os.Stat(file.Path); statErr == nil {
			originalSize = st.Size()
		}
	}
	job := &model.OptimizationJob{
		Source:        file,
		Options:       opts,
		Width:         width,
		Height:        height,
		Result:        blob,
		OriginalSize:  originalSize,
		OptimizedSize: int64(len(blob)),
	}
	logger.GetLogger().
		WithField("file", file.Name).
		WithField("original_size", job.OriginalSize).
		WithField("optimized_size", job.OptimizedSize).
		WithField("ratio", job.CompressionRatio()).
		Info("Video optimized")
	return job, nil
}

func (o *optimizer) Thumbnail(ctx context.Context, file model.SourceFile, atSeconds float64) ([]byte, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.busy.Store(false)

	meta, err := o.processor.Probe(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", file.Name, err)
	}
	at := atSeconds
	if at < 0 {
		at = 0
	}
	// seeking to the very end decodes nothing, so stay just inside the last frame
	if d := meta.Duration.Seconds(); d > 0 && at > d-endFrameMargin {
		at = max(0, d-endFrameMargin)
	}
	frame, err := o.processor.Frame(ctx, file.Path, at, thumbnailMaxWidth, thumbnailMaxHeight)
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (o *optimizer) Close() {
	if o.processor != nil {
		o.processor.Cancel()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for path := range o.temps {
		_ = os.Remove(path)
		delete(o.temps, path)
	}
}

func (o *optimizer) track(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.temps[path] = struct{}{}
}

func (o *optimizer) release(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = os.Remove(path)
	delete(o.temps, path)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func evenDown(v int) int {
	if v < 2 {
		return 2
	}
	return v &^ 1
}
