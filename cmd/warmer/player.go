package main

import (
	"context"
	"sync"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// headlessPlayer stands in for a media element: Load streams the source in the
// background and exposes progress as a buffered range.
type headlessPlayer struct {
	ctx      context.Context
	loader   repository.IMediaLoader
	duration float64
	// onProgress fires after every buffered update.
	onProgress func()

	mu       sync.Mutex
	src      string
	muted    bool
	paused   bool
	current  float64
	buffered float64
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ repository.IMediaController = (*headlessPlayer)(nil)

func newHeadlessPlayer(ctx context.Context, loader repository.IMediaLoader, durationSeconds float64) *headlessPlayer {
	return &headlessPlayer{ctx: ctx, loader: loader, duration: durationSeconds, paused: true}
}

func (p *headlessPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *headlessPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *headlessPlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = seconds
	return nil
}

func (p *headlessPlayer) SetMuted(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	return nil
}

func (p *headlessPlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *headlessPlayer) SetSource(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = url
	return nil
}

func (p *headlessPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *headlessPlayer) Buffered() []model.TimeRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buffered <= 0 {
		return nil
	}
	return []model.TimeRange{{Start: 0, End: p.buffered}}
}

// Load restarts buffering of the current source. It does not wait for the download.
func (p *headlessPlayer) Load() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.buffered, p.current = 0, 0
	src := p.src
	p.mu.Unlock()

	go func() {
		defer close(done)
		err := p.loader.Load(ctx, src, func(fraction float64) {
			p.mu.Lock()
			p.buffered = fraction * p.duration
			p.mu.Unlock()
			if p.onProgress != nil {
				p.onProgress()
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.GetLogger().WithField("error", err).WithField("src", src).Warn("Playback load failed")
		}
	}()
	return nil
}

// Wait blocks until the most recent Load has finished.
func (p *headlessPlayer) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *headlessPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}
