package model

import "encoding/json"

// Control message types exchanged between players and the gateway.
const (
	MessagePreloadVideos = "PRELOAD_VIDEOS"
	MessageClearCache    = "CLEAR_CACHE"
	MessageGetCacheSize  = "GET_CACHE_SIZE"
	MessageCacheSize     = "CACHE_SIZE"
)

// ControlMessage is the envelope of every control channel message.
type ControlMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PreloadVideosData is the payload of PRELOAD_VIDEOS.
type PreloadVideosData struct {
	VideoURLs []string `json:"videoUrls"`
}

// CacheSizeReply answers GET_CACHE_SIZE.
type CacheSizeReply struct {
	Type string `json:"type"`
	Size int    `json:"size"`
}

// WorkerEvent names a lifecycle event handled by the gateway worker.
type WorkerEvent string

const (
	EventInstall  WorkerEvent = "install"
	EventActivate WorkerEvent = "activate"
	EventFetch    WorkerEvent = "fetch"
	EventMessage  WorkerEvent = "message"
	EventSync     WorkerEvent = "sync"
)

// SyncTagPreload re-warms the last failed preload batch.
const SyncTagPreload = "preload-videos"
