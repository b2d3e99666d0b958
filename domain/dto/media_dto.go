package dto

import "video-gateway/domain/model"

// AnalyzeResponse is returned by POST /api/media/analyze.
type AnalyzeResponse struct {
	Metadata  model.VideoMetadata       `json:"metadata"`
	DurationS float64                   `json:"duration_seconds"`
	Suggested model.OptimizationOptions `json:"suggested"`
}

// OptimizeSummary is exposed in response headers of POST /api/media/optimize.
type OptimizeSummary struct {
	OriginalSize  int64   `json:"original_size"`
	OptimizedSize int64   `json:"optimized_size"`
	Ratio         float64 `json:"ratio"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
}
