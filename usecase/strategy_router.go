package usecase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// IStrategyRouter serves every intercepted request through its caching strategy.
type IStrategyRouter interface {
	Handle(ctx context.Context, req *model.Request) *model.Result
	Stats() map[string]dto.StrategyStats
}

type strategyRouter struct {
	classifier  *Classifier
	cache       ICacheManager
	network     repository.INetwork
	apiMaxStale time.Duration
	now         func() time.Time

	flight singleflight.Group

	mu    sync.Mutex
	stats map[model.Strategy]*dto.StrategyStats
}

func NewStrategyRouter(classifier *Classifier, cache ICacheManager, network repository.INetwork, apiMaxStale time.Duration) IStrategyRouter {
	return &strategyRouter{
		classifier:  classifier,
		cache:       cache,
		network:     network,
		apiMaxStale: apiMaxStale,
		now:         time.Now,
		stats:       make(map[model.Strategy]*dto.StrategyStats),
	}
}

func (r *strategyRouter) Handle(ctx context.Context, req *model.Request) *model.Result {
	strategy := r.classifier.Classify(req)
	if strategy != model.StrategyPassthrough {
		req = identityEncoded(req)
	}
	var res *model.Result
	switch strategy {
	case model.StrategyPassthrough:
		res = r.passthrough(ctx, req)
	case model.StrategyVideo:
		res = r.cacheFirst(ctx, req, model.StrategyVideo, model.NamespaceVideo, true)
	case model.StrategyStatic:
		res = r.cacheFirst(ctx, req, model.StrategyStatic, model.NamespaceStatic, false)
	case model.StrategyAPI:
		res = r.networkFirst(ctx, req, model.StrategyAPI, true)
	default:
		res = r.networkFirst(ctx, req, model.StrategyDefault, false)
	}
	res.Strategy = strategy
	r.record(res)
	return res
}

func (r *strategyRouter) passthrough(ctx context.Context, req *model.Request) *model.Result {
	resp, err := r.network.Fetch(ctx, req)
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("url", req.URL).Warn("Passthrough request failed")
		h := http.Header{}
		h.Set("Content-Type", "text/plain; charset=utf-8")
		resp = &model.Response{StatusCode: http.StatusBadGateway, Headers: h, Body: []byte(http.StatusText(http.StatusBadGateway))}
	}
	return &model.Result{Response: resp, Cache: model.CacheBypass}
}

// cacheFirst serves the video and static strategies. Range requests on video
// never touch the cache in either direction.
func (r *strategyRouter) cacheFirst(ctx context.Context, req *model.Request, s model.Strategy, ns model.CacheNamespace, rangeAware bool) *model.Result {
	lg := logger.GetLogger().WithField("strategy", s).WithField("url", req.URL)

	if rangeAware && req.HasRange() {
		resp, err := r.network.Fetch(ctx, req)
		if err != nil {
			lg.WithField("error", err).Warn("Range request failed")
			return &model.Result{Response: model.SyntheticResponse(s), Cache: model.CacheBypass}
		}
		return &model.Result{Response: resp, Cache: model.CacheBypass}
	}

	entry, err := r.cache.Get(ctx, req)
	if err != nil {
		lg.WithField("error", err).Warn("Cache read failed")
	}
	if entry != nil {
		return &model.Result{Response: entry.Response(), Cache: model.CacheHit}
	}

	// The shared fetch outlives whichever caller started it; the origin
	// client's own timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(req.Key(), func() (interface{}, error) {
		resp, fetchErr := r.network.Fetch(shared, req)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if resp.IsComplete() {
			r.cache.Put(shared, ns, req, resp)
		}
		return resp, nil
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		lg.WithField("error", ctx.Err()).Debug("Client gone before fetch completed")
		return &model.Result{Response: model.SyntheticResponse(s), Cache: model.CacheMiss}
	}
	if out.Err != nil {
		lg.WithField("error", out.Err).Warn("Network fetch failed")
		return &model.Result{Response: model.SyntheticResponse(s), Cache: model.CacheMiss}
	}
	return &model.Result{Response: cloneResponse(out.Val.(*model.Response)), Cache: model.CacheMiss}
}

// networkFirst serves the API and default strategies.
func (r *strategyRouter) networkFirst(ctx context.Context, req *model.Request, s model.Strategy, store bool) *model.Result {
	lg := logger.GetLogger().WithField("strategy", s).WithField("url", req.URL)

	resp, err := r.network.Fetch(ctx, req)
	if err == nil {
		if store && resp.IsComplete() {
			r.cache.Put(ctx, model.NamespaceGeneric, req, resp)
		}
		return &model.Result{Response: resp, Cache: model.CacheMiss}
	}
	lg.WithField("error", err).Warn("Network fetch failed, trying cache")

	entry, cacheErr := r.cache.Get(ctx, req)
	if cacheErr != nil {
		lg.WithField("error", cacheErr).Warn("Cache read failed")
	}
	if entry != nil && r.fresh(s, entry) {
		return &model.Result{Response: entry.Response(), Cache: model.CacheHit}
	}
	return &model.Result{Response: model.SyntheticResponse(s), Cache: model.CacheMiss}
}

// fresh bounds how stale an API fallback may be.
func (r *strategyRouter) fresh(s model.Strategy, entry *model.CachedEntry) bool {
	if s != model.StrategyAPI || r.apiMaxStale <= 0 {
		return true
	}
	return r.now().Sub(entry.StoredAt) <= r.apiMaxStale
}

func (r *strategyRouter) record(res *model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[res.Strategy]
	if !ok {
		st = &dto.StrategyStats{}
		r.stats[res.Strategy] = st
	}
	switch res.Cache {
	case model.CacheHit:
		st.Hits++
	case model.CacheMiss:
		st.Misses++
	case model.CacheBypass:
		st.Bypasses++
	}
	if res.Response.StatusCode >= http.StatusInternalServerError || isSynthetic(res) {
		st.Errors++
	}
}

func (r *strategyRouter) Stats() map[string]dto.StrategyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]dto.StrategyStats, len(r.stats))
	for s, st := range r.stats {
		out[string(s)] = *st
	}
	return out
}

func isSynthetic(res *model.Result) bool {
	fb, ok := model.Fallbacks[res.Strategy]
	return ok && res.Response.StatusCode == fb.StatusCode && string(res.Response.Body) == fb.Body
}

// identityEncoded drops the client's Accept-Encoding so the origin transport
// negotiates compression itself and hands back a decoded body. Cache keys
// ignore Vary, so stored bodies must never carry a content coding.
func identityEncoded(req *model.Request) *model.Request {
	if req.Headers.Get("Accept-Encoding") == "" {
		return req
	}
	out := *req
	out.Headers = req.Headers.Clone()
	out.Headers.Del("Accept-Encoding")
	return &out
}

func cloneResponse(resp *model.Response) *model.Response {
	return &model.Response{StatusCode: resp.StatusCode, Headers: resp.Headers.Clone(), Body: resp.Body}
}
