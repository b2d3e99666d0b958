package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/logger"
	"video-gateway/usecase"

	"github.com/gin-gonic/gin"
)

type IMediaHandler interface {
	Analyze(ctx *gin.Context)
	Optimize(ctx *gin.Context)
	Thumbnail(ctx *gin.Context)
}

type MediaHandler struct {
	optimizer usecase.IOptimizer
	tempDir   string
	maxUpload int64
}

func NewMediaHandler(optimizer usecase.IOptimizer, tempDir string, maxUploadBytes int64) IMediaHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &MediaHandler{optimizer: optimizer, tempDir: tempDir, maxUpload: maxUploadBytes}
}

// optimizeForm overrides suggested settings field by field; zero values keep the suggestion.
type optimizeForm struct {
	MaxWidth        int     `form:"max_width"`
	MaxHeight       int     `form:"max_height"`
	QualityFactor   float64 `form:"quality_factor"`
	BitrateKbps     int     `form:"bitrate_kbps"`
	FrameRate       int     `form:"frame_rate"`
	ContainerFormat string  `form:"container_format"`
}

func (h *MediaHandler) Analyze(ctx *gin.Context) {
	file, cleanup, ok := h.receive(ctx)
	if !ok {
		return
	}
	defer cleanup()

	res, err := h.optimizer.Analyze(ctx.Request.Context(), file)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

func (h *MediaHandler) Optimize(ctx *gin.Context) {
	file, cleanup, ok := h.receive(ctx)
	if !ok {
		return
	}
	defer cleanup()

	var form optimizeForm
	if err := ctx.ShouldBind(&form); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if form.ContainerFormat != "" && form.ContainerFormat != model.ContainerWebM && form.ContainerFormat != model.ContainerMP4 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "container_format must be webm or mp4"})
		return
	}

	analysis, err := h.optimizer.Analyze(ctx.Request.Context(), file)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	opts := mergeOptions(analysis.Suggested, form)

	job, err := h.optimizer.Optimize(ctx.Request.Context(), file, opts)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	base := strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".optimized."+opts.ContainerFormat))
	ctx.Header("X-Original-Size", strconv.FormatInt(job.OriginalSize, 10))
	ctx.Header("X-Optimized-Size", strconv.FormatInt(job.OptimizedSize, 10))
	ctx.Header("X-Compression-Ratio", strconv.FormatFloat(job.CompressionRatio(), 'f', 4, 64))
	ctx.Header("X-Output-Dimensions", fmt.Sprintf("%dx%d", job.Width, job.Height))
	ctx.Data(http.StatusOK, job.MediaType(), job.Result)
}

func (h *MediaHandler) Thumbnail(ctx *gin.Context) {
	file, cleanup, ok := h.receive(ctx)
	if !ok {
		return
	}
	defer cleanup()

	at, err := strconv.ParseFloat(ctx.DefaultPostForm("at", "0"), 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "at must be a number of seconds"})
		return
	}
	img, err := h.optimizer.Thumbnail(ctx.Request.Context(), file, at)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "image/jpeg", img)
}

func mergeOptions(opts model.OptimizationOptions, form optimizeForm) model.OptimizationOptions {
	if form.MaxWidth > 0 {
		opts.MaxWidth = form.MaxWidth
	}
	if form.MaxHeight > 0 {
		opts.MaxHeight = form.MaxHeight
	}
	if form.QualityFactor > 0 && form.QualityFactor <= 1 {
		opts.QualityFactor = form.QualityFactor
	}
	if form.BitrateKbps > 0 {
		opts.BitrateKbps = form.BitrateKbps
	}
	if form.FrameRate > 0 {
		opts.FrameRate = form.FrameRate
	}
	if form.ContainerFormat != "" {
		opts.ContainerFormat = form.ContainerFormat
	}
	return opts
}

// receive stores the uploaded "file" field on disk. It writes the error response itself when ok is false.
func (h *MediaHandler) receive(ctx *gin.Context) (model.SourceFile, func(), bool) {
	if !h.optimizer.Supported() {
		ctx.JSON(http.StatusNotImplemented, gin.H{"error": model.ErrOptimizerUnsupported.Error()})
		return model.SourceFile{}, nil, false
	}
	if h.maxUpload > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxUpload)
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return model.SourceFile{}, nil, false
	}
	path, err := h.save(ctx, header)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Unable to store upload")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "unable to store upload"})
		return model.SourceFile{}, nil, false
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.GetLogger().WithField("error", err).WithField("path", path).Warn("Unable to remove upload")
		}
	}
	return model.SourceFile{Path: path, Name: filepath.Base(header.Filename), Size: header.Size}, cleanup, true
}

func (h *MediaHandler) save(ctx *gin.Context, header *multipart.FileHeader) (string, error) {
	f, err := os.CreateTemp(h.tempDir, "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := ctx.SaveUploadedFile(header, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *MediaHandler) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrOptimizerUnsupported):
		ctx.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrOptimizerBusy):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.GetLogger().WithField("error", err).Error("Media processing failed")
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	}
}
