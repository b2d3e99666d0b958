package model

import "time"

// Container formats supported by the optimizer.
const (
	ContainerWebM = "webm"
	ContainerMP4  = "mp4"
)

// VideoMetadata describes a source file.
type VideoMetadata struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Duration time.Duration `json:"duration"`
}

// OptimizationOptions control a re-encode.
type OptimizationOptions struct {
	MaxWidth        int     `json:"max_width"`
	MaxHeight       int     `json:"max_height"`
	QualityFactor   float64 `json:"quality_factor"`
	BitrateKbps     int     `json:"bitrate_kbps"`
	FrameRate       int     `json:"frame_rate"`
	ContainerFormat string  `json:"container_format"`
}

// SourceFile is a user-supplied video on local disk.
type SourceFile struct {
	Path string
	Name string
	Size int64
}

// OptimizationJob is the result of one optimize call.
type OptimizationJob struct {
	Source        SourceFile          `json:"-"`
	Options       OptimizationOptions `json:"options"`
	Width         int                 `json:"width"`
	Height        int                 `json:"height"`
	Result        []byte              `json:"-"`
	OriginalSize  int64               `json:"original_size"`
	OptimizedSize int64               `json:"optimized_size"`
}

// CompressionRatio is optimized/original; zero when the original is empty.
func (j *OptimizationJob) CompressionRatio() float64 {
	if j.OriginalSize == 0 {
		return 0
	}
	return float64(j.OptimizedSize) / float64(j.OriginalSize)
}

// MediaType returns the MIME type of the produced blob.
func (j *OptimizationJob) MediaType() string {
	if j.Options.ContainerFormat == ContainerMP4 {
		return "video/mp4"
	}
	return "video/webm"
}
