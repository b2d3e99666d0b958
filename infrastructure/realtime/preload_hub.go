package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/logger"
)

// PreloadEvent is the SSE payload sent whenever a preload task changes state.
type PreloadEvent struct {
	Type string            `json:"type"`
	Task model.PreloadTask `json:"task"`
}

// PreloadHub fans preload task snapshots out to every connected SSE subscriber.
type PreloadHub struct {
	mu   sync.RWMutex
	subs map[chan PreloadEvent]struct{}
}

func NewPreloadHub() *PreloadHub {
	return &PreloadHub{subs: make(map[chan PreloadEvent]struct{})}
}

// Serve streams preload events until the client goes away.
func (h *PreloadHub) Serve(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := make(chan PreloadEvent, 16)
	h.subscribe(ch)
	defer h.unsubscribe(ch)

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-ch:
			data, err := json.Marshal(evt)
			if err != nil {
				logger.GetLogger().WithField("error", err).Warn("Unable to encode preload event")
				continue
			}
			_, _ = c.Writer.Write([]byte("event: preload_status\ndata: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// Subscribers returns the number of connected streams.
func (h *PreloadHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *PreloadHub) subscribe(ch chan PreloadEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = struct{}{}
}

func (h *PreloadHub) unsubscribe(ch chan PreloadEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, ch)
}

// PublishPreload broadcasts a task snapshot. Slow subscribers miss events rather than stall the preloader.
func (h *PreloadHub) PublishPreload(task model.PreloadTask) {
	evt := PreloadEvent{Type: "preload_status", Task: task}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
