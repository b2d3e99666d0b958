package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/domain/model"
)

type stubEstimator struct {
	mu   sync.Mutex
	mbps float64
	err  error
}

func (s *stubEstimator) Measure(context.Context, string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mbps, s.err
}

func newTestQualityController(cfg QualityConfig) (*qualityController, *fakePlayer) {
	qc := NewQualityController(&stubEstimator{mbps: 3}, cfg).(*qualityController)
	player := &fakePlayer{source: "http://gateway/videos/intro.mp4?lang=en&quality=720p"}
	qc.Bind(player)
	return qc, player
}

func bandwidthOf(label string) float64 {
	for _, p := range model.DefaultQualityLadder {
		if p.Label == label {
			return p.MinBandwidthMbps
		}
	}
	return -1
}

func TestQualityController_Recommend(t *testing.T) {
	qc, _ := newTestQualityController(QualityConfig{})
	tests := []struct {
		mbps float64
		want string
	}{
		{10, "1080p"},
		{5, "1080p"},
		{4.9, "720p"},
		{2.5, "720p"},
		{1.2, "480p"},
		{0.5, "360p"},
		{0.1, "360p"},
		{0, "360p"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, qc.Recommend(tt.mbps), "mbps=%v", tt.mbps)
	}
}

func TestQualityController_RecommendIsMonotonic(t *testing.T) {
	qc, _ := newTestQualityController(QualityConfig{})
	prev := -1.0
	for m := 0.0; m <= 12; m += 0.05 {
		req := bandwidthOf(qc.Recommend(m))
		assert.GreaterOrEqual(t, req, prev, "mbps=%v", m)
		prev = req
	}
}

func TestQualityController_LadderIsSorted(t *testing.T) {
	shuffled := []model.QualityProfile{
		model.DefaultQualityLadder[3], model.DefaultQualityLadder[0],
		model.DefaultQualityLadder[1], model.DefaultQualityLadder[4], model.DefaultQualityLadder[2],
	}
	qc := NewQualityController(&stubEstimator{}, QualityConfig{Ladder: shuffled})
	assert.Equal(t, []string{"auto", "1080p", "720p", "480p", "360p"}, qc.State().AvailableQualities)
}

func TestQualityController_ChangeQuality(t *testing.T) {
	qc, player := newTestQualityController(QualityConfig{HintTTL: 40 * time.Millisecond})

	require.NoError(t, qc.ChangeQuality("480p"))
	assert.Equal(t, "http://gateway/videos/intro.mp4?lang=en&quality=480p", player.Source())
	assert.Equal(t, 1, player.loadCount())
	assert.Equal(t, "480p", qc.State().CurrentQuality)

	// unchanged quality is a no-op
	require.NoError(t, qc.ChangeQuality("480p"))
	assert.Equal(t, 1, player.loadCount())

	// auto drops the parameter
	require.NoError(t, qc.ChangeQuality(model.QualityAuto))
	assert.Equal(t, "http://gateway/videos/intro.mp4?lang=en", player.Source())

	assert.Error(t, qc.ChangeQuality("4k"))
}

func TestQualityController_NextTierHintExpires(t *testing.T) {
	var mu sync.Mutex
	var prefetched []string
	qc, _ := newTestQualityController(QualityConfig{
		HintTTL: 40 * time.Millisecond,
		Prefetch: func(url string) {
			mu.Lock()
			prefetched = append(prefetched, url)
			mu.Unlock()
		},
	})

	require.NoError(t, qc.ChangeQuality("720p"))
	assert.Equal(t, []string{"http://gateway/videos/intro.mp4?lang=en&quality=1080p"}, qc.Hints())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prefetched) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(qc.Hints()) == 0 }, time.Second, 5*time.Millisecond)

	// nothing above the top tier
	require.NoError(t, qc.ChangeQuality("1080p"))
	assert.Empty(t, qc.Hints())
}

func TestQualityController_DebouncedAutoSwitch(t *testing.T) {
	qc, player := newTestQualityController(QualityConfig{Adaptive: true, SwitchDebounce: 40 * time.Millisecond})

	qc.OnNetworkMeasured(1.2) // R1: 480p
	time.Sleep(10 * time.Millisecond)
	qc.OnNetworkMeasured(6) // R2: 1080p

	assert.Eventually(t, func() bool { return qc.State().CurrentQuality == "1080p" }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, "1080p", qc.State().CurrentQuality)
	assert.Equal(t, 1, player.loadCount())
	assert.Equal(t, 6.0, qc.State().MeasuredNetworkMbps)
	assert.Equal(t, "1080p", qc.State().RecommendedQuality)
}

func TestQualityController_RecommendationBackToCurrentCancelsSwitch(t *testing.T) {
	qc, player := newTestQualityController(QualityConfig{Adaptive: true, SwitchDebounce: 40 * time.Millisecond})
	require.NoError(t, qc.ChangeQuality("720p"))
	require.Equal(t, 1, player.loadCount())

	qc.OnNetworkMeasured(1.2) // 480p, differs from current
	time.Sleep(10 * time.Millisecond)
	qc.OnNetworkMeasured(bandwidthOf("720p")) // back to the current tier

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "720p", qc.State().RecommendedQuality)
	assert.Equal(t, "720p", qc.State().CurrentQuality)
	assert.Equal(t, 1, player.loadCount())
	assert.False(t, qc.debouncer.Pending())
}

func TestQualityController_RepeatedRecommendationKeepsDeadline(t *testing.T) {
	qc, _ := newTestQualityController(QualityConfig{Adaptive: true, SwitchDebounce: 60 * time.Millisecond})
	require.NoError(t, qc.ChangeQuality("720p"))

	// measurements arriving faster than the debounce must not postpone the switch forever
	for i := 0; i < 5; i++ {
		qc.OnNetworkMeasured(1.2)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return qc.State().CurrentQuality == "480p" }, time.Second, 5*time.Millisecond)
}

func TestQualityController_NonAdaptiveOnlyRecommends(t *testing.T) {
	qc, player := newTestQualityController(QualityConfig{Adaptive: false, SwitchDebounce: 10 * time.Millisecond})
	qc.OnNetworkMeasured(0.6)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, "360p", qc.State().RecommendedQuality)
	assert.Equal(t, model.QualityAuto, qc.State().CurrentQuality)
	assert.Zero(t, player.loadCount())
}

func TestQualityController_BufferDriven(t *testing.T) {
	t.Run("low buffer steps down", func(t *testing.T) {
		qc, player := newTestQualityController(QualityConfig{BufferTargetSeconds: 30})
		require.NoError(t, qc.ChangeQuality("720p"))
		player.setBuffer(100, 110) // 10s ahead < 15s
		qc.OnProgress()
		assert.Equal(t, "480p", qc.State().CurrentQuality)
		assert.InDelta(t, 33.3, qc.State().BufferProgressPercent, 0.1)
	})

	t.Run("lowest tier stays", func(t *testing.T) {
		qc, player := newTestQualityController(QualityConfig{BufferTargetSeconds: 30})
		require.NoError(t, qc.ChangeQuality("360p"))
		player.setBuffer(10, 11)
		qc.OnProgress()
		assert.Equal(t, "360p", qc.State().CurrentQuality)
	})

	t.Run("healthy buffer and network steps up", func(t *testing.T) {
		qc, player := newTestQualityController(QualityConfig{BufferTargetSeconds: 30})
		require.NoError(t, qc.ChangeQuality("480p"))
		qc.OnNetworkMeasured(3)
		player.setBuffer(0, 40)
		qc.OnProgress()
		assert.Equal(t, "720p", qc.State().CurrentQuality)
		// 1080p needs 5 Mbps
		qc.OnProgress()
		assert.Equal(t, "720p", qc.State().CurrentQuality)
	})

	t.Run("slow network blocks step up", func(t *testing.T) {
		qc, player := newTestQualityController(QualityConfig{BufferTargetSeconds: 30})
		require.NoError(t, qc.ChangeQuality("360p"))
		qc.OnNetworkMeasured(1.5)
		player.setBuffer(0, 60)
		qc.OnProgress()
		assert.Equal(t, "360p", qc.State().CurrentQuality)
	})

	t.Run("auto steps down from the recommended tier", func(t *testing.T) {
		qc, player := newTestQualityController(QualityConfig{BufferTargetSeconds: 30})
		qc.OnNetworkMeasured(3) // recommends 720p, not adaptive
		player.setBuffer(0, 5)
		qc.OnProgress()
		assert.Equal(t, "480p", qc.State().CurrentQuality)
	})
}

func TestQualityController_Run(t *testing.T) {
	est := &stubEstimator{mbps: 0.7}
	qc := NewQualityController(est, QualityConfig{MeasureInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- qc.Run(ctx) }()

	assert.Eventually(t, func() bool { return qc.State().RecommendedQuality == "360p" }, time.Second, 5*time.Millisecond)
	est.mu.Lock()
	est.mbps = 8
	est.mu.Unlock()
	assert.Eventually(t, func() bool { return qc.State().RecommendedQuality == "1080p" }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
