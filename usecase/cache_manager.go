package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// ICacheManager owns the versioned namespace stores and their lifecycle.
type ICacheManager interface {
	Install(ctx context.Context) (*dto.LifecycleResponse, error)
	Activate(ctx context.Context) (*dto.LifecycleResponse, error)
	// Claimed reports whether activation completed and requests are being served.
	Claimed() bool
	// Get looks the request up across the current stores; nil, nil on a miss.
	Get(ctx context.Context, req *model.Request) (*model.CachedEntry, error)
	// Put stores resp under ns. Failures are logged, never returned.
	Put(ctx context.Context, ns model.CacheNamespace, req *model.Request, resp *model.Response)
	Delete(ctx context.Context, ns model.CacheNamespace) error
	Count(ctx context.Context, ns model.CacheNamespace) (int, error)
	// Sweep removes entries of ns stored before now-maxAge.
	Sweep(ctx context.Context, ns model.CacheNamespace, maxAge time.Duration) (int, error)
	StoreName(ns model.CacheNamespace) string
}

type cacheManager struct {
	store   repository.ICacheStore
	version string
	claimed atomic.Bool
	now     func() time.Time
}

func NewCacheManager(store repository.ICacheStore, version string) ICacheManager {
	return newCacheManager(store, version, time.Now)
}

func newCacheManager(store repository.ICacheStore, version string, now func() time.Time) *cacheManager {
	return &cacheManager{store: store, version: version, now: now}
}

func (m *cacheManager) StoreName(ns model.CacheNamespace) string {
	return ns.StoreName(m.version)
}

func (m *cacheManager) currentNames() map[string]struct{} {
	names := make(map[string]struct{}, len(model.Namespaces))
	for _, ns := range model.Namespaces {
		names[m.StoreName(ns)] = struct{}{}
	}
	return names
}

func (m *cacheManager) Install(ctx context.Context) (*dto.LifecycleResponse, error) {
	res := &dto.LifecycleResponse{Event: string(model.EventInstall), SkipWaiting: true}
	for _, ns := range model.Namespaces {
		name := m.StoreName(ns)
		if err := m.store.Open(ctx, name); err != nil {
			return nil, fmt.Errorf("open store %s: %w", name, err)
		}
		res.Stores = append(res.Stores, name)
	}
	logger.GetLogger().WithField("stores", res.Stores).Info("Cache stores installed")
	return res, nil
}

func (m *cacheManager) Activate(ctx context.Context) (*dto.LifecycleResponse, error) {
	names, err := m.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	current := m.currentNames()
	res := &dto.LifecycleResponse{Event: string(model.EventActivate)}
	for _, name := range names {
		if _, ok := current[name]; ok {
			continue
		}
		if err := m.store.Drop(ctx, name); err != nil {
			return nil, fmt.Errorf("drop stale store %s: %w", name, err)
		}
		res.Deleted = append(res.Deleted, name)
	}
	m.claimed.Store(true)
	res.Claimed = true
	logger.GetLogger().WithField("deleted", res.Deleted).Info("Cache stores activated")
	return res, nil
}

func (m *cacheManager) Claimed() bool {
	return m.claimed.Load()
}

func (m *cacheManager) Get(ctx context.Context, req *model.Request) (*model.CachedEntry, error) {
	key := req.Key()
	for _, ns := range model.Namespaces {
		entry, err := m.store.Match(ctx, m.StoreName(ns), key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, nil
}

func (m *cacheManager) Put(ctx context.Context, ns model.CacheNamespace, req *model.Request, resp *model.Response) {
	lg := logger.GetLogger().WithField("namespace", ns).WithField("url", req.URL)
	if !resp.IsComplete() {
		lg.WithField("status", resp.StatusCode).WithField("error", model.ErrPartialResponse).Warn("Refusing to cache response")
		return
	}
	if err := m.store.Put(ctx, m.StoreName(ns), model.NewCachedEntry(req, resp, m.now())); err != nil {
		lg.WithField("error", err).Warn("Cache write failed")
	}
}

func (m *cacheManager) Delete(ctx context.Context, ns model.CacheNamespace) error {
	return m.store.Drop(ctx, m.StoreName(ns))
}

func (m *cacheManager) Count(ctx context.Context, ns model.CacheNamespace) (int, error) {
	return m.store.Count(ctx, m.StoreName(ns))
}

func (m *cacheManager) Sweep(ctx context.Context, ns model.CacheNamespace, maxAge time.Duration) (int, error) {
	sweeper, ok := m.store.(repository.ICacheSweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.DeleteOlderThan(ctx, m.StoreName(ns), m.now().Add(-maxAge).UnixNano())
}
