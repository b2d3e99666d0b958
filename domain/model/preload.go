package model

// PreloadStatus is the lifecycle state of a PreloadTask.
type PreloadStatus string

const (
	PreloadPending PreloadStatus = "pending"
	PreloadLoading PreloadStatus = "loading"
	PreloadLoaded  PreloadStatus = "loaded"
	PreloadError   PreloadStatus = "error"
)

// IsTerminal reports whether the status ends a preload.
func (s PreloadStatus) IsTerminal() bool {
	return s == PreloadLoaded || s == PreloadError
}

// PreloadTask tracks one look-ahead fetch.
type PreloadTask struct {
	URL      string        `json:"url"`
	Status   PreloadStatus `json:"status"`
	Progress int           `json:"progress"` // 0-100
	Error    string        `json:"error,omitempty"`
}
