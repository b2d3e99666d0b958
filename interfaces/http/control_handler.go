package http

import (
	"errors"
	"net/http"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
	"video-gateway/infrastructure/logger"
	"video-gateway/usecase"

	"github.com/gin-gonic/gin"
)

type IControlHandler interface {
	Message(ctx *gin.Context)
	Lifecycle(ctx *gin.Context)
	Sync(ctx *gin.Context)
	PreloadStatus(ctx *gin.Context)
	Stats(ctx *gin.Context)
}

type ControlHandler struct {
	worker    usecase.IWorker
	router    usecase.IStrategyRouter
	cache     usecase.ICacheManager
	preloader usecase.IPreloader
}

func NewControlHandler(worker usecase.IWorker, router usecase.IStrategyRouter, cache usecase.ICacheManager, preloader usecase.IPreloader) IControlHandler {
	return &ControlHandler{worker: worker, router: router, cache: cache, preloader: preloader}
}

// Message accepts one control message and answers with its reply.
func (h *ControlHandler) Message(ctx *gin.Context) {
	var msg model.ControlMessage
	if err := ctx.ShouldBindJSON(&msg); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ControlResponse{Message: "invalid request body"})
		return
	}
	reply, err := usecase.MessageHandler(h.worker)(ctx.Request.Context(), msg)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.GetLogger().WithField("error", err).WithField("type", msg.Type).Error("Control message failed")
		}
		ctx.JSON(status, dto.ControlResponse{Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, dto.ControlResponse{Success: true, Reply: reply})
}

// Lifecycle triggers install or activate by hand, e.g. after a version bump.
func (h *ControlHandler) Lifecycle(ctx *gin.Context) {
	evt := model.WorkerEvent(ctx.Param("event"))
	if evt != model.EventInstall && evt != model.EventActivate {
		ctx.JSON(http.StatusNotFound, dto.ControlResponse{Message: "unknown lifecycle event"})
		return
	}
	res, err := h.worker.Dispatch(ctx.Request.Context(), usecase.WorkerEvent{Type: evt})
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("event", evt).Error("Lifecycle event failed")
		ctx.JSON(http.StatusInternalServerError, dto.ControlResponse{Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, dto.ControlResponse{Success: true, Reply: res.Lifecycle})
}

func (h *ControlHandler) Sync(ctx *gin.Context) {
	tag := ctx.DefaultQuery("tag", model.SyncTagPreload)
	res, err := h.worker.Dispatch(ctx.Request.Context(), usecase.WorkerEvent{Type: model.EventSync, Tag: tag})
	if err != nil {
		ctx.JSON(statusFor(err), dto.ControlResponse{Message: err.Error()})
		return
	}
	resynced := res.Resynced
	if resynced == nil {
		resynced = []string{}
	}
	ctx.JSON(http.StatusOK, dto.ControlResponse{Success: true, Reply: gin.H{"tag": tag, "resynced": resynced}})
}

func (h *ControlHandler) PreloadStatus(ctx *gin.Context) {
	tasks := h.preloader.Tasks()
	if tasks == nil {
		tasks = []model.PreloadTask{}
	}
	ctx.JSON(http.StatusOK, dto.PreloadStatusResponse{Tasks: tasks})
}

func (h *ControlHandler) Stats(ctx *gin.Context) {
	res := dto.StatsResponse{Strategies: h.router.Stats(), Namespaces: map[string]int{}}
	for _, ns := range model.Namespaces {
		n, err := h.cache.Count(ctx.Request.Context(), ns)
		if err != nil {
			logger.GetLogger().WithField("error", err).WithField("namespace", ns).Warn("Unable to count cache entries")
			continue
		}
		res.Namespaces[string(ns)] = n
	}
	ctx.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrWorkerNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrUnknownMessage),
		errors.Is(err, model.ErrUnknownNamespace),
		errors.Is(err, model.ErrMalformedMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
