package repository

import (
	"context"

	"video-gateway/domain/model"
)

// IMediaLoader is a detached loader used for look-ahead preloading.
type IMediaLoader interface {
	// Load fetches url and reports the buffered fraction (0..1) as it goes.
	// It returns once the media can play or an error occurs.
	Load(ctx context.Context, url string, onProgress func(buffered float64)) error
}

// IMediaController is held by collaborators that need to drive the live player.
type IMediaController interface {
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetMuted(muted bool) error
	// Source returns the URL currently bound to the player.
	Source() string
	// SetSource rebinds the player to url; Load must be called afterwards.
	SetSource(url string) error
	Load() error
	CurrentTime() float64
	Buffered() []model.TimeRange
}

// IMediaProcessor probes and re-encodes video files.
type IMediaProcessor interface {
	Available() bool
	Probe(ctx context.Context, path string) (*model.VideoMetadata, error)
	Transcode(ctx context.Context, src, dst string, width, height int, opts model.OptimizationOptions) error
	// Frame extracts one PNG frame at the given offset scaled to fit the bounds.
	Frame(ctx context.Context, src string, atSeconds float64, maxWidth, maxHeight int) ([]byte, error)
	// Cancel stops any process currently running.
	Cancel()
}
