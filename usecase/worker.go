package usecase

import (
	"context"
	"fmt"
	"net/http"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// WorkerEvent is one lifecycle event delivered to the gateway worker.
type WorkerEvent struct {
	Type    model.WorkerEvent
	Request *model.Request
	Message *model.ControlMessage
	Tag     string
}

// WorkerResult carries whatever the handler for an event produced.
type WorkerResult struct {
	Lifecycle *dto.LifecycleResponse
	Fetch     *model.Result
	Reply     interface{}
	Resynced  []string
}

type WorkerHandler func(ctx context.Context, evt WorkerEvent) (*WorkerResult, error)

// IWorker dispatches lifecycle events to their handlers.
type IWorker interface {
	Dispatch(ctx context.Context, evt WorkerEvent) (*WorkerResult, error)
	// Start runs install then activate.
	Start(ctx context.Context) error
	Ready() bool
}

type worker struct {
	cache    ICacheManager
	router   IStrategyRouter
	channel  IControlChannel
	network  repository.INetwork
	handlers map[model.WorkerEvent]WorkerHandler
}

func NewWorker(cache ICacheManager, router IStrategyRouter, channel IControlChannel, network repository.INetwork) IWorker {
	w := &worker{cache: cache, router: router, channel: channel, network: network}
	w.handlers = map[model.WorkerEvent]WorkerHandler{
		model.EventInstall:  w.onInstall,
		model.EventActivate: w.onActivate,
		model.EventFetch:    w.onFetch,
		model.EventMessage:  w.onMessage,
		model.EventSync:     w.onSync,
	}
	return w
}

func (w *worker) Dispatch(ctx context.Context, evt WorkerEvent) (*WorkerResult, error) {
	h, ok := w.handlers[evt.Type]
	if !ok {
		return nil, fmt.Errorf("no handler for worker event %q", evt.Type)
	}
	return h(ctx, evt)
}

func (w *worker) Start(ctx context.Context) error {
	if _, err := w.Dispatch(ctx, WorkerEvent{Type: model.EventInstall}); err != nil {
		return err
	}
	_, err := w.Dispatch(ctx, WorkerEvent{Type: model.EventActivate})
	return err
}

func (w *worker) Ready() bool {
	return w.cache.Claimed()
}

func (w *worker) onInstall(ctx context.Context, _ WorkerEvent) (*WorkerResult, error) {
	res, err := w.cache.Install(ctx)
	if err != nil {
		return nil, err
	}
	return &WorkerResult{Lifecycle: res}, nil
}

func (w *worker) onActivate(ctx context.Context, _ WorkerEvent) (*WorkerResult, error) {
	res, err := w.cache.Activate(ctx)
	if err != nil {
		return nil, err
	}
	return &WorkerResult{Lifecycle: res}, nil
}

// onFetch routes through the strategies once activated; before that requests
// go straight to the network.
func (w *worker) onFetch(ctx context.Context, evt WorkerEvent) (*WorkerResult, error) {
	if evt.Request == nil {
		return nil, fmt.Errorf("fetch event without request")
	}
	if w.Ready() {
		return &WorkerResult{Fetch: w.router.Handle(ctx, evt.Request)}, nil
	}
	resp, err := w.network.Fetch(ctx, evt.Request)
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("url", evt.Request.URL).Warn("Fetch before activation failed")
		h := http.Header{}
		h.Set("Content-Type", "text/plain; charset=utf-8")
		resp = &model.Response{StatusCode: http.StatusBadGateway, Headers: h, Body: []byte(http.StatusText(http.StatusBadGateway))}
	}
	return &WorkerResult{Fetch: &model.Result{Response: resp, Strategy: model.StrategyPassthrough, Cache: model.CacheBypass}}, nil
}

func (w *worker) onMessage(ctx context.Context, evt WorkerEvent) (*WorkerResult, error) {
	if evt.Message == nil {
		return nil, fmt.Errorf("message event without payload")
	}
	if !w.Ready() {
		return nil, model.ErrWorkerNotReady
	}
	reply, err := w.channel.Handle(ctx, *evt.Message)
	if err != nil {
		return nil, err
	}
	return &WorkerResult{Reply: reply}, nil
}

func (w *worker) onSync(ctx context.Context, evt WorkerEvent) (*WorkerResult, error) {
	if evt.Tag != model.SyncTagPreload {
		return &WorkerResult{}, nil
	}
	urls, err := w.channel.Resync(ctx)
	if err != nil {
		return nil, err
	}
	return &WorkerResult{Resynced: urls}, nil
}

// MessageHandler exposes the worker's message event as a plain control handler for transports.
func MessageHandler(w IWorker) repository.ControlHandler {
	return func(ctx context.Context, msg model.ControlMessage) (interface{}, error) {
		res, err := w.Dispatch(ctx, WorkerEvent{Type: model.EventMessage, Message: &msg})
		if err != nil {
			return nil, err
		}
		return res.Reply, nil
	}
}
