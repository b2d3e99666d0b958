package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/domain/model"
)

func TestClient_UnconfiguredIsNoop(t *testing.T) {
	c := NewGatewayClient("", "", time.Second)
	assert.NoError(t, c.PreloadVideos(context.Background(), []string{"/v/1.mp4"}))
	size, err := c.CacheSize(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, size)
}

func TestClient_UnreachableIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewGatewayClient(url, "", time.Second)
	assert.NoError(t, c.ClearCache(context.Background()))
}

func TestClient_NotReadyIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"message":"gateway worker not ready"}`))
	}))
	defer srv.Close()

	size, err := NewGatewayClient(srv.URL, "", time.Second).CacheSize(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, size)
}

func TestClient_Messages(t *testing.T) {
	var mu sync.Mutex
	var received []model.ControlMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MessagesPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var msg model.ControlMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		if msg.Type == model.MessageGetCacheSize {
			_, _ = w.Write([]byte(`{"success":true,"reply":{"type":"CACHE_SIZE","size":4}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewGatewayClient(srv.URL+"/", "tok", time.Second)
	ctx := context.Background()
	require.NoError(t, c.PreloadVideos(ctx, []string{"/v/1.mp4", "/v/2.mp4"}))
	require.NoError(t, c.ClearCache(ctx, model.NamespaceVideo))
	size, err := c.CacheSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	require.Len(t, received, 3)
	assert.JSONEq(t, `{"videoUrls":["/v/1.mp4","/v/2.mp4"]}`, string(received[0].Data))
	assert.JSONEq(t, `{"namespaces":["video"]}`, string(received[1].Data))
	assert.Equal(t, model.MessageGetCacheSize, received[2].Type)
}

func TestClient_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"unknown control message type"}`))
	}))
	defer srv.Close()

	_, err := NewGatewayClient(srv.URL, "", time.Second).Send(context.Background(), model.ControlMessage{Type: "REBOOT"})
	assert.ErrorContains(t, err, "unknown control message type")
}

func TestMediaLoader(t *testing.T) {
	body := strings.Repeat("x", 3*readChunk)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", "196608")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	var progress []float64
	loader := NewMediaLoader(srv.Client())
	require.NoError(t, loader.Load(context.Background(), srv.URL+"/a.mp4", func(b float64) {
		progress = append(progress, b)
	}))
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	assert.Error(t, loader.Load(context.Background(), srv.URL+"/missing.mp4", nil))
}
