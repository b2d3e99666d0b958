package usecase

import (
	"context"
	"sync"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// Progress stays below this until the media reports it can play.
const preloadProgressCap = 90

type PreloaderConfig struct {
	PreloadCount int
	// PreloadDistance is accepted for compatibility; the window is PreloadCount wide.
	PreloadDistance       int
	MaxConcurrentPreloads int
}

// IPreloadObserver receives a task snapshot on every state change.
type IPreloadObserver interface {
	PublishPreload(task model.PreloadTask)
}

// IPreloader warms upcoming videos of a playlist.
type IPreloader interface {
	SetPlaylist(urls []string)
	Schedule(currentIndex int)
	// Enqueue warms arbitrary URLs outside the playlist window.
	Enqueue(urls ...string)
	Tasks() []model.PreloadTask
	Task(url string) (model.PreloadTask, bool)
	MaxActive() int
	Wait()
	Close()
}

type preloader struct {
	loader   repository.IMediaLoader
	observer IPreloadObserver
	cfg      PreloaderConfig
	queue    *BoundedQueue[string]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	playlist []string
	tasks    map[string]*model.PreloadTask
	order    []string
	// windowed marks URLs queued by Schedule, as opposed to explicit Enqueue calls.
	windowed map[string]struct{}
}

func NewPreloader(loader repository.IMediaLoader, observer IPreloadObserver, cfg PreloaderConfig) IPreloader {
	if cfg.PreloadCount <= 0 {
		cfg.PreloadCount = 3
	}
	if cfg.MaxConcurrentPreloads <= 0 {
		cfg.MaxConcurrentPreloads = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &preloader{
		loader:   loader,
		observer: observer,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*model.PreloadTask),
		windowed: make(map[string]struct{}),
	}
	p.queue = NewBoundedQueue(cfg.MaxConcurrentPreloads, p.startPreload)
	return p
}

func (p *preloader) SetPlaylist(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist = append([]string(nil), urls...)
}

func (p *preloader) Schedule(currentIndex int) {
	p.mu.Lock()
	window := make(map[string]struct{}, p.cfg.PreloadCount)
	var enqueue []string
	for i := currentIndex + 1; i <= currentIndex+p.cfg.PreloadCount && i < len(p.playlist); i++ {
		if i < 0 {
			continue
		}
		url := p.playlist[i]
		window[url] = struct{}{}
		if p.admit(url) {
			p.windowed[url] = struct{}{}
			enqueue = append(enqueue, url)
		}
	}
	p.mu.Unlock()

	// Pending items that fell out of the window are superseded.
	p.mu.Lock()
	windowed := make(map[string]struct{}, len(p.windowed))
	for url := range p.windowed {
		windowed[url] = struct{}{}
	}
	p.mu.Unlock()
	dropped := p.queue.Retain(func(url string) bool {
		if _, ok := windowed[url]; !ok {
			return true
		}
		_, ok := window[url]
		return ok
	})
	if len(dropped) > 0 {
		p.mu.Lock()
		for _, url := range dropped {
			p.forget(url)
		}
		p.mu.Unlock()
	}

	p.queue.Enqueue(enqueue...)
}

func (p *preloader) Enqueue(urls ...string) {
	p.mu.Lock()
	var enqueue []string
	for _, url := range urls {
		if p.admit(url) {
			delete(p.windowed, url)
			enqueue = append(enqueue, url)
		}
	}
	p.mu.Unlock()
	p.queue.Enqueue(enqueue...)
}

// admit registers url as pending unless it is already queued, loading or loaded.
// Callers hold p.mu.
func (p *preloader) admit(url string) bool {
	if t, ok := p.tasks[url]; ok && t.Status != model.PreloadError {
		return false
	}
	if _, ok := p.tasks[url]; !ok {
		p.order = append(p.order, url)
	}
	t := &model.PreloadTask{URL: url, Status: model.PreloadPending}
	p.tasks[url] = t
	p.publish(*t)
	return true
}

// Callers hold p.mu.
func (p *preloader) forget(url string) {
	delete(p.tasks, url)
	delete(p.windowed, url)
	for i, u := range p.order {
		if u == url {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *preloader) startPreload(url string) {
	p.update(url, func(t *model.PreloadTask) {
		t.Status = model.PreloadLoading
		t.Progress = 0
		t.Error = ""
	})

	err := p.loader.Load(p.ctx, url, func(buffered float64) {
		progress := int(buffered * 100)
		if progress > preloadProgressCap {
			progress = preloadProgressCap
		}
		if progress < 0 {
			progress = 0
		}
		p.update(url, func(t *model.PreloadTask) {
			if progress > t.Progress {
				t.Progress = progress
			}
		})
	})
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("url", url).Warn("Preload failed")
		p.update(url, func(t *model.PreloadTask) {
			t.Status = model.PreloadError
			t.Error = err.Error()
		})
		return
	}
	p.update(url, func(t *model.PreloadTask) {
		t.Status = model.PreloadLoaded
		t.Progress = 100
	})
}

func (p *preloader) update(url string, fn func(t *model.PreloadTask)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[url]
	if !ok {
		t = &model.PreloadTask{URL: url}
		p.tasks[url] = t
		p.order = append(p.order, url)
	}
	fn(t)
	p.publish(*t)
}

func (p *preloader) publish(t model.PreloadTask) {
	if p.observer != nil {
		p.observer.PublishPreload(t)
	}
}

func (p *preloader) Tasks() []model.PreloadTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PreloadTask, 0, len(p.order))
	for _, url := range p.order {
		out = append(out, *p.tasks[url])
	}
	return out
}

func (p *preloader) Task(url string) (model.PreloadTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[url]
	if !ok {
		return model.PreloadTask{}, false
	}
	return *t, true
}

func (p *preloader) MaxActive() int {
	return p.queue.MaxActive()
}

func (p *preloader) Wait() {
	p.queue.Wait()
}

// Close aborts in-flight loads.
func (p *preloader) Close() {
	p.cancel()
}
