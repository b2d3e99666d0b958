package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/logger"
	"video-gateway/usecase"

	"github.com/gin-gonic/gin"
)

const defaultMaxBody = 32 << 20

const (
	HeaderCache         = "X-Cache"
	HeaderCacheStrategy = "X-Cache-Strategy"
)

type IGatewayHandler interface {
	// Proxy serves any request not claimed by another route through the worker's fetch handler.
	Proxy(ctx *gin.Context)
}

type GatewayHandler struct {
	worker    usecase.IWorker
	originURL string
	maxBody   int64
}

func NewGatewayHandler(worker usecase.IWorker, originURL string, maxBody int64) IGatewayHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &GatewayHandler{worker: worker, originURL: strings.TrimRight(originURL, "/"), maxBody: maxBody}
}

func (h *GatewayHandler) Proxy(ctx *gin.Context) {
	if h.originURL == "" {
		ctx.String(http.StatusBadGateway, "origin not configured")
		return
	}
	req := &model.Request{
		Method:  ctx.Request.Method,
		URL:     h.originURL + ctx.Request.URL.RequestURI(),
		Headers: ctx.Request.Header.Clone(),
	}
	if ctx.Request.Body != nil && ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
		body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxBody))
		if err != nil {
			ctx.String(http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		req.Body = body
	}

	res, err := h.worker.Dispatch(ctx.Request.Context(), usecase.WorkerEvent{Type: model.EventFetch, Request: req})
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("url", req.URL).Error("Fetch handler failed")
		ctx.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeResult(ctx, res.Fetch)
}

func writeResult(ctx *gin.Context, result *model.Result) {
	resp := result.Response
	header := ctx.Writer.Header()
	for k, values := range resp.Headers {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range values {
			header.Add(k, v)
		}
	}
	header.Set(HeaderCache, string(result.Cache))
	header.Set(HeaderCacheStrategy, string(result.Strategy))
	if ctx.Request.Method == http.MethodHead {
		// the origin's length describes the body a GET would return
		if cl := resp.Headers.Get("Content-Length"); cl != "" {
			header.Set("Content-Length", cl)
		}
		ctx.Status(resp.StatusCode)
		return
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	ctx.Status(resp.StatusCode)
	if _, err := ctx.Writer.Write(resp.Body); err != nil {
		logger.GetLogger().WithField("error", err).Debug("Client went away while writing response")
	}
}
