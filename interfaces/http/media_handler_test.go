package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"video-gateway/domain/dto"
	"video-gateway/domain/model"
)

type MockOptimizer struct {
	mock.Mock
}

func (m *MockOptimizer) Supported() bool {
	return m.Called().Bool(0)
}

func (m *MockOptimizer) Analyze(ctx context.Context, file model.SourceFile) (*dto.AnalyzeResponse, error) {
	args := m.Called(ctx, file)
	res, _ := args.Get(0).(*dto.AnalyzeResponse)
	return res, args.Error(1)
}

func (m *MockOptimizer) Optimize(ctx context.Context, file model.SourceFile, opts model.OptimizationOptions) (*model.OptimizationJob, error) {
	args := m.Called(ctx, file, opts)
	job, _ := args.Get(0).(*model.OptimizationJob)
	return job, args.Error(1)
}

func (m *MockOptimizer) Thumbnail(ctx context.Context, file model.SourceFile, atSeconds float64) ([]byte, error) {
	args := m.Called(ctx, file, atSeconds)
	img, _ := args.Get(0).([]byte)
	return img, args.Error(1)
}

func (m *MockOptimizer) Close() {
	m.Called()
}

func mediaEngine(opt *MockOptimizer, tempDir string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMediaHandler(opt, tempDir, 1<<20)
	r := gin.New()
	r.POST("/api/media/analyze", h.Analyze)
	r.POST("/api/media/optimize", h.Optimize)
	r.POST("/api/media/thumbnail", h.Thumbnail)
	return r
}

func upload(t *testing.T, target string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.mov")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte{1}, 1000))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var sourceFile = mock.MatchedBy(func(f model.SourceFile) bool {
	return f.Name == "clip.mov" && f.Size == 1000 && f.Path != ""
})

func TestMediaHandler_Unsupported(t *testing.T) {
	opt := &MockOptimizer{}
	opt.On("Supported").Return(false)
	w := httptest.NewRecorder()
	mediaEngine(opt, t.TempDir()).ServeHTTP(w, upload(t, "/api/media/analyze", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	opt.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestMediaHandler_Analyze(t *testing.T) {
	dir := t.TempDir()
	opt := &MockOptimizer{}
	opt.On("Supported").Return(true)
	opt.On("Analyze", mock.Anything, sourceFile).Return(&dto.AnalyzeResponse{
		Metadata:  model.VideoMetadata{Width: 1920, Height: 1080, Duration: time.Minute},
		DurationS: 60,
	}, nil)

	w := httptest.NewRecorder()
	mediaEngine(opt, dir).ServeHTTP(w, upload(t, "/api/media/analyze", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duration_seconds":60`)

	// the upload is removed once the request is done
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	opt.AssertExpectations(t)
}

func TestMediaHandler_Optimize(t *testing.T) {
	opt := &MockOptimizer{}
	suggested := model.OptimizationOptions{MaxWidth: 1920, MaxHeight: 1080, QualityFactor: 0.8, BitrateKbps: 2073, FrameRate: 30, ContainerFormat: model.ContainerWebM}
	want := suggested
	want.ContainerFormat = model.ContainerMP4
	want.FrameRate = 24

	opt.On("Supported").Return(true)
	opt.On("Analyze", mock.Anything, sourceFile).Return(&dto.AnalyzeResponse{Suggested: suggested}, nil)
	opt.On("Optimize", mock.Anything, sourceFile, want).Return(&model.OptimizationJob{
		Options: want, Width: 1280, Height: 720, Result: []byte("encoded"), OriginalSize: 1000, OptimizedSize: 7,
	}, nil)

	w := httptest.NewRecorder()
	mediaEngine(opt, t.TempDir()).ServeHTTP(w, upload(t, "/api/media/optimize", map[string]string{
		"container_format": "mp4", "frame_rate": "24",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "encoded", w.Body.String())
	assert.Equal(t, "1000", w.Header().Get("X-Original-Size"))
	assert.Equal(t, "7", w.Header().Get("X-Optimized-Size"))
	assert.Equal(t, "0.0070", w.Header().Get("X-Compression-Ratio"))
	assert.Equal(t, "1280x720", w.Header().Get("X-Output-Dimensions"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `clip.optimized.mp4`)
	opt.AssertExpectations(t)
}

func TestMediaHandler_OptimizeErrors(t *testing.T) {
	opt := &MockOptimizer{}
	opt.On("Supported").Return(true)
	opt.On("Analyze", mock.Anything, mock.Anything).Return(&dto.AnalyzeResponse{}, nil)
	opt.On("Optimize", mock.Anything, mock.Anything, mock.Anything).Return(nil, model.ErrOptimizerBusy)
	engine := mediaEngine(opt, t.TempDir())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, upload(t, "/api/media/optimize", map[string]string{"container_format": "avi"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, upload(t, "/api/media/optimize", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/media/optimize", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMediaHandler_Thumbnail(t *testing.T) {
	opt := &MockOptimizer{}
	opt.On("Supported").Return(true)
	opt.On("Thumbnail", mock.Anything, sourceFile, 2.5).Return([]byte{0xff, 0xd8}, nil)

	w := httptest.NewRecorder()
	mediaEngine(opt, t.TempDir()).ServeHTTP(w, upload(t, "/api/media/thumbnail", map[string]string{"at": "2.5"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, w.Body.Bytes())

	w = httptest.NewRecorder()
	mediaEngine(opt, t.TempDir()).ServeHTTP(w, upload(t, "/api/media/thumbnail", map[string]string{"at": "soon"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
