package model

// QualityProfile is one rung of the quality ladder.
type QualityProfile struct {
	Label              string  `json:"label"`
	ResolutionTag      string  `json:"resolution_tag"`
	NominalBitrateKbps int     `json:"nominal_bitrate_kbps"`
	MinBandwidthMbps   float64 `json:"min_bandwidth_mbps"`
}

// QualityAuto defers to the unmodified source URL.
const QualityAuto = "auto"

// DefaultQualityLadder is ordered by descending bandwidth requirement. "auto" is
// listed first and never takes part in bandwidth comparisons.
var DefaultQualityLadder = []QualityProfile{
	{Label: QualityAuto, ResolutionTag: "auto"},
	{Label: "1080p", ResolutionTag: "1920x1080", NominalBitrateKbps: 5000, MinBandwidthMbps: 5},
	{Label: "720p", ResolutionTag: "1280x720", NominalBitrateKbps: 2500, MinBandwidthMbps: 2.5},
	{Label: "480p", ResolutionTag: "854x480", NominalBitrateKbps: 1000, MinBandwidthMbps: 1},
	{Label: "360p", ResolutionTag: "640x360", NominalBitrateKbps: 500, MinBandwidthMbps: 0.5},
}

// LoadingState is the observable state of the adaptive quality controller.
type LoadingState struct {
	CurrentQuality        string   `json:"current_quality"`
	IsLoading             bool     `json:"is_loading"`
	BufferProgressPercent float64  `json:"buffer_progress_percent"`
	MeasuredNetworkMbps   float64  `json:"measured_network_mbps"`
	RecommendedQuality    string   `json:"recommended_quality"`
	AvailableQualities    []string `json:"available_qualities"`
}

// TimeRange is one buffered interval of a media element, in seconds.
type TimeRange struct {
	Start float64
	End   float64
}
