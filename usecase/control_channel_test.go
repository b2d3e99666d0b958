package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/cache"
)

type gatewayFixture struct {
	worker    IWorker
	cache     ICacheManager
	router    IStrategyRouter
	preloader IPreloader
	network   *fakeNetwork
}

func newGatewayFixture(t *testing.T, handler func(req *model.Request) (*model.Response, error)) *gatewayFixture {
	t.Helper()
	network := &fakeNetwork{handler: handler}
	mgr := NewCacheManager(cache.NewMemoryStore(), "v1")
	router := NewStrategyRouter(NewClassifier("/api/"), mgr, network, time.Minute)
	preloader := NewPreloader(NewRouterLoader(router), nil, PreloaderConfig{PreloadCount: 3, MaxConcurrentPreloads: 2})
	t.Cleanup(preloader.Close)
	channel := NewControlChannel(mgr, preloader)
	return &gatewayFixture{
		worker:    NewWorker(mgr, router, channel, network),
		cache:     mgr,
		router:    router,
		preloader: preloader,
		network:   network,
	}
}

func message(t *testing.T, typ string, data interface{}) *model.ControlMessage {
	t.Helper()
	msg := &model.ControlMessage{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		msg.Data = raw
	}
	return msg
}

func videoHandler(req *model.Request) (*model.Response, error) {
	if strings.Contains(req.URL, "broken") {
		return nil, errOffline
	}
	return okResponse("video:"+req.URL, "video/mp4"), nil
}

func TestWorker_MessagesBeforeActivation(t *testing.T) {
	f := newGatewayFixture(t, videoHandler)
	ctx := context.Background()

	_, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessageGetCacheSize, nil)})
	assert.ErrorIs(t, err, model.ErrWorkerNotReady)

	// fetches go straight to the network and are not cached
	res, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventFetch, Request: getRequest("http://origin/a.mp4")})
	require.NoError(t, err)
	assert.Equal(t, model.CacheBypass, res.Fetch.Cache)
	n, err := f.cache.Count(ctx, model.NamespaceVideo)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_ControlMessages(t *testing.T) {
	f := newGatewayFixture(t, videoHandler)
	ctx := context.Background()
	require.NoError(t, f.worker.Start(ctx))
	require.True(t, f.worker.Ready())

	urls := []string{"http://origin/1.mp4", "http://origin/2.mp4", "http://origin/3.webm"}
	_, err := f.worker.Dispatch(ctx, WorkerEvent{
		Type:    model.EventMessage,
		Message: message(t, model.MessagePreloadVideos, model.PreloadVideosData{VideoURLs: urls}),
	})
	require.NoError(t, err)
	f.preloader.Wait()

	res, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessageGetCacheSize, nil)})
	require.NoError(t, err)
	assert.Equal(t, model.CacheSizeReply{Type: "CACHE_SIZE", Size: 3}, res.Reply)

	// warmed entries are served without another origin call
	calls := f.network.calls.Load()
	fetched, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventFetch, Request: getRequest(urls[0])})
	require.NoError(t, err)
	assert.Equal(t, model.CacheHit, fetched.Fetch.Cache)
	assert.Equal(t, calls, f.network.calls.Load())

	_, err = f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessageClearCache, nil)})
	require.NoError(t, err)
	res, err = f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessageGetCacheSize, nil)})
	require.NoError(t, err)
	assert.Equal(t, model.CacheSizeReply{Type: "CACHE_SIZE", Size: 0}, res.Reply)
}

func TestControlChannel_Errors(t *testing.T) {
	f := newGatewayFixture(t, videoHandler)
	ctx := context.Background()
	require.NoError(t, f.worker.Start(ctx))

	_, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: &model.ControlMessage{Type: "REBOOT"}})
	assert.ErrorIs(t, err, model.ErrUnknownMessage)

	_, err = f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessageClearCache, map[string]interface{}{"namespaces": []string{"thumbnails"}})})
	assert.ErrorIs(t, err, model.ErrUnknownNamespace)

	_, err = f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: &model.ControlMessage{Type: model.MessagePreloadVideos, Data: json.RawMessage(`{"videoUrls":`)}})
	assert.ErrorIs(t, err, model.ErrMalformedMessage)

	_, err = f.worker.Dispatch(ctx, WorkerEvent{Type: "push"})
	assert.Error(t, err)
}

func TestWorker_SyncRewarmsFailedBatch(t *testing.T) {
	broken := true
	f := newGatewayFixture(t, func(req *model.Request) (*model.Response, error) {
		if broken && strings.Contains(req.URL, "flaky") {
			return nil, errOffline
		}
		return okResponse("ok", "video/mp4"), nil
	})
	ctx := context.Background()
	require.NoError(t, f.worker.Start(ctx))

	urls := []string{"http://origin/good.mp4", "http://origin/flaky.mp4"}
	_, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: message(t, model.MessagePreloadVideos, model.PreloadVideosData{VideoURLs: urls})})
	require.NoError(t, err)
	f.preloader.Wait()

	task, ok := f.preloader.Task(urls[1])
	require.True(t, ok)
	assert.Equal(t, model.PreloadError, task.Status)

	// other sync tags are ignored
	res, err := f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventSync, Tag: "something-else"})
	require.NoError(t, err)
	assert.Empty(t, res.Resynced)

	broken = false
	res, err = f.worker.Dispatch(ctx, WorkerEvent{Type: model.EventSync, Tag: model.SyncTagPreload})
	require.NoError(t, err)
	assert.Equal(t, []string{urls[1]}, res.Resynced)
	f.preloader.Wait()

	task, _ = f.preloader.Task(urls[1])
	assert.Equal(t, model.PreloadLoaded, task.Status)
}

func TestRouterLoader(t *testing.T) {
	f := newGatewayFixture(t, func(req *model.Request) (*model.Response, error) {
		return &model.Response{StatusCode: http.StatusNotFound, Headers: http.Header{}}, nil
	})
	var progress float64
	err := NewRouterLoader(f.router).Load(context.Background(), "http://origin/gone.mp4", func(p float64) { progress = p })
	assert.Error(t, err)
	assert.Zero(t, progress)
}

func TestMessageHandler(t *testing.T) {
	f := newGatewayFixture(t, videoHandler)
	ctx := context.Background()
	handle := MessageHandler(f.worker)

	_, err := handle(ctx, model.ControlMessage{Type: model.MessageGetCacheSize})
	assert.ErrorIs(t, err, model.ErrWorkerNotReady)

	require.NoError(t, f.worker.Start(ctx))
	reply, err := handle(ctx, model.ControlMessage{Type: model.MessageGetCacheSize})
	require.NoError(t, err)
	assert.Equal(t, model.CacheSizeReply{Type: model.MessageCacheSize, Size: 0}, reply)
}
