package http

import (
	"net/http"

	"video-gateway/usecase"

	"github.com/gin-gonic/gin"
)

type IHealthHandler interface {
	Healthz(ctx *gin.Context)
}

type HealthHandler struct {
	worker  usecase.IWorker
	backend string
}

func NewHealthHandler(worker usecase.IWorker, backend string) IHealthHandler {
	return &HealthHandler{worker: worker, backend: backend}
}

// Healthz returns OK for health checks
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "ready": h.worker.Ready(), "backend": h.backend})
}
