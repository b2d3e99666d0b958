package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// IControlChannel answers control messages sent by players and operators.
type IControlChannel interface {
	Handle(ctx context.Context, msg model.ControlMessage) (interface{}, error)
	// Resync re-warms URLs of the last preload batch that ended in error.
	Resync(ctx context.Context) ([]string, error)
}

type clearCacheData struct {
	Namespaces []model.CacheNamespace `json:"namespaces"`
}

type controlChannel struct {
	cache     ICacheManager
	preloader IPreloader

	mu        sync.Mutex
	lastBatch []string
}

func NewControlChannel(cache ICacheManager, preloader IPreloader) IControlChannel {
	return &controlChannel{cache: cache, preloader: preloader}
}

func (c *controlChannel) Handle(ctx context.Context, msg model.ControlMessage) (interface{}, error) {
	switch msg.Type {
	case model.MessagePreloadVideos:
		var data model.PreloadVideosData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedMessage, msg.Type, err)
			}
		}
		c.mu.Lock()
		c.lastBatch = append([]string(nil), data.VideoURLs...)
		c.mu.Unlock()
		c.preloader.Enqueue(data.VideoURLs...)
		logger.GetLogger().WithField("count", len(data.VideoURLs)).Info("Preload requested")
		return nil, nil

	case model.MessageClearCache:
		data := clearCacheData{}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedMessage, msg.Type, err)
			}
		}
		if len(data.Namespaces) == 0 {
			data.Namespaces = []model.CacheNamespace{model.NamespaceVideo}
		}
		for _, ns := range data.Namespaces {
			if !knownNamespace(ns) {
				return nil, fmt.Errorf("%w: %s", model.ErrUnknownNamespace, ns)
			}
			if err := c.cache.Delete(ctx, ns); err != nil {
				return nil, fmt.Errorf("clear %s: %w", ns, err)
			}
		}
		logger.GetLogger().WithField("namespaces", data.Namespaces).Info("Cache cleared")
		return nil, nil

	case model.MessageGetCacheSize:
		n, err := c.cache.Count(ctx, model.NamespaceVideo)
		if err != nil {
			return nil, err
		}
		return model.CacheSizeReply{Type: model.MessageCacheSize, Size: n}, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownMessage, msg.Type)
}

func (c *controlChannel) Resync(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	batch := append([]string(nil), c.lastBatch...)
	c.mu.Unlock()

	var failed []string
	for _, url := range batch {
		if t, ok := c.preloader.Task(url); ok && t.Status == model.PreloadError {
			failed = append(failed, url)
		}
	}
	if len(failed) > 0 {
		c.preloader.Enqueue(failed...)
	}
	return failed, ctx.Err()
}

func knownNamespace(ns model.CacheNamespace) bool {
	for _, n := range model.Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// routerLoader warms a URL by requesting it through the strategy router,
// so video URLs land in the video namespace.
type routerLoader struct {
	router IStrategyRouter
}

func NewRouterLoader(router IStrategyRouter) repository.IMediaLoader {
	return &routerLoader{router: router}
}

func (l *routerLoader) Load(ctx context.Context, url string, onProgress func(float64)) error {
	res := l.router.Handle(ctx, &model.Request{Method: http.MethodGet, URL: url, Headers: http.Header{}})
	if res.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("warm %s: status %d", url, res.Response.StatusCode)
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}
