package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/infrastructure/utils"
	httpHandler "video-gateway/interfaces/http"
)

type stubGateway struct{}

func (stubGateway) Proxy(c *gin.Context) { c.String(http.StatusTeapot, "proxied") }

type stubControl struct{}

func (stubControl) Message(c *gin.Context)       { c.Status(http.StatusOK) }
func (stubControl) Lifecycle(c *gin.Context)     { c.Status(http.StatusOK) }
func (stubControl) Sync(c *gin.Context)          { c.Status(http.StatusOK) }
func (stubControl) PreloadStatus(c *gin.Context) { c.Status(http.StatusOK) }
func (stubControl) Stats(c *gin.Context)         { c.Status(http.StatusOK) }

type stubHealth struct{}

func (stubHealth) Healthz(c *gin.Context) { c.Status(http.StatusOK) }

var _ httpHandler.IControlHandler = stubControl{}

func newTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return InitiateRouter(Handlers{Gateway: stubGateway{}, Control: stubControl{}, Health: stubHealth{}}, []string{"http://localhost:4200"}, secret)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter("")

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/_gateway/stats", nil)).Code)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/videos/a.mp4", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "proxied", w.Body.String())
}

func TestRouter_ControlGuardedWithSecret(t *testing.T) {
	r := newTestRouter("s3cret")
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/_gateway/stats", nil)).Code)

	token, err := utils.GenerateToken(map[string]interface{}{"sub": "ops"}, "s3cret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/_gateway/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	// media and proxied routes stay open
	assert.Equal(t, http.StatusTeapot, serve(r, httptest.NewRequest(http.MethodGet, "/api/items", nil)).Code)
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter("")
	req := httptest.NewRequest(http.MethodGet, "/videos/a.mp4", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	w := serve(r, req)
	assert.Equal(t, "http://localhost:4200", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Cache")
}
