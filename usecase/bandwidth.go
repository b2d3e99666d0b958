package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-gateway/domain/repository"
)

// IBandwidthEstimator reports the current downstream throughput in Mbps.
type IBandwidthEstimator interface {
	Measure(ctx context.Context, url string) (float64, error)
}

// DownlinkFunc returns a platform-reported downlink estimate in Mbps, if any.
type DownlinkFunc func() (float64, bool)

type bandwidthProbe struct {
	network  repository.INetwork
	downlink DownlinkFunc
	now      func() time.Time
}

// NewBandwidthProbe prefers downlink when it reports a value and otherwise times a HEAD request.
func NewBandwidthProbe(network repository.INetwork, downlink DownlinkFunc) IBandwidthEstimator {
	return &bandwidthProbe{network: network, downlink: downlink, now: time.Now}
}

func (b *bandwidthProbe) Measure(ctx context.Context, url string) (float64, error) {
	if b.downlink != nil {
		if mbps, ok := b.downlink(); ok && mbps > 0 {
			return mbps, nil
		}
	}
	if url == "" {
		return 0, errors.New("no url to probe")
	}
	start := b.now()
	_, size, err := b.network.Head(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	return throughputMbps(size, b.now().Sub(start))
}

func throughputMbps(size int64, elapsed time.Duration) (float64, error) {
	if size <= 0 {
		return 0, errors.New("probe response has no content length")
	}
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(size) * 8 / elapsed.Seconds() / 1e6, nil
}
