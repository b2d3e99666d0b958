package dto

import "video-gateway/domain/model"

// ControlResponse is returned by the HTTP control endpoint.
type ControlResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Reply   interface{} `json:"reply,omitempty"`
}

// LifecycleResponse reports the outcome of install/activate.
type LifecycleResponse struct {
	Event       string   `json:"event"`
	SkipWaiting bool     `json:"skip_waiting,omitempty"`
	Claimed     bool     `json:"claimed,omitempty"`
	Stores      []string `json:"stores,omitempty"`
	Deleted     []string `json:"deleted,omitempty"`
}

// PreloadStatusResponse lists preload tasks known to the gateway.
type PreloadStatusResponse struct {
	Tasks []model.PreloadTask `json:"tasks"`
}

// StrategyStats counts outcomes for one strategy.
type StrategyStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Bypasses int64 `json:"bypasses"`
	Errors   int64 `json:"errors"`
}

// StatsResponse is served by GET /_gateway/stats.
type StatsResponse struct {
	Strategies map[string]StrategyStats `json:"strategies"`
	Namespaces map[string]int           `json:"namespaces"`
}
