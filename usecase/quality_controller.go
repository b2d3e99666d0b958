package usecase

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/go-querystring/query"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

const (
	defaultSwitchDebounce  = 2 * time.Second
	defaultMeasureInterval = 30 * time.Second
	defaultHintTTL         = 10 * time.Second
	// Stepping up on a full buffer also needs at least this much measured network.
	stepUpMinMbps = 2.0
)

type QualityConfig struct {
	BufferTargetSeconds float64
	Adaptive            bool
	Ladder              []model.QualityProfile
	SwitchDebounce      time.Duration
	MeasureInterval     time.Duration
	HintTTL             time.Duration
	// Prefetch is invoked for next-tier hints. Optional.
	Prefetch func(url string)
}

// IQualityController selects and switches the video quality of a bound player.
type IQualityController interface {
	Bind(player repository.IMediaController)
	Run(ctx context.Context) error
	MeasureNetwork(ctx context.Context) (float64, error)
	OnNetworkMeasured(mbps float64)
	OnProgress()
	Recommend(mbps float64) string
	ChangeQuality(quality string) error
	State() model.LoadingState
	Hints() []string
	QualityURL(quality string) (string, error)
}

type qualityParams struct {
	Quality string `url:"quality,omitempty"`
}

type qualityController struct {
	cfg       QualityConfig
	estimator IBandwidthEstimator
	debouncer *Debouncer

	mu     sync.Mutex
	player repository.IMediaController
	source string
	state  model.LoadingState
	hints  map[string]*time.Timer
}

func NewQualityController(estimator IBandwidthEstimator, cfg QualityConfig) IQualityController {
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = model.DefaultQualityLadder
	}
	cfg.Ladder = sortLadder(cfg.Ladder)
	if cfg.BufferTargetSeconds <= 0 {
		cfg.BufferTargetSeconds = 30
	}
	if cfg.SwitchDebounce <= 0 {
		cfg.SwitchDebounce = defaultSwitchDebounce
	}
	if cfg.MeasureInterval <= 0 {
		cfg.MeasureInterval = defaultMeasureInterval
	}
	if cfg.HintTTL <= 0 {
		cfg.HintTTL = defaultHintTTL
	}
	labels := make([]string, 0, len(cfg.Ladder))
	for _, p := range cfg.Ladder {
		labels = append(labels, p.Label)
	}
	return &qualityController{
		cfg:       cfg,
		estimator: estimator,
		debouncer: NewDebouncer(cfg.SwitchDebounce),
		hints:     make(map[string]*time.Timer),
		state: model.LoadingState{
			CurrentQuality:     model.QualityAuto,
			RecommendedQuality: model.QualityAuto,
			AvailableQualities: labels,
		},
	}
}

// sortLadder puts auto first and the remaining tiers in descending bandwidth order.
func sortLadder(in []model.QualityProfile) []model.QualityProfile {
	out := append([]model.QualityProfile(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Label == model.QualityAuto {
			return out[j].Label != model.QualityAuto
		}
		if out[j].Label == model.QualityAuto {
			return false
		}
		return out[i].MinBandwidthMbps > out[j].MinBandwidthMbps
	})
	return out
}

// tiers returns the ladder without auto.
func (c *qualityController) tiers() []model.QualityProfile {
	out := make([]model.QualityProfile, 0, len(c.cfg.Ladder))
	for _, p := range c.cfg.Ladder {
		if p.Label != model.QualityAuto {
			out = append(out, p)
		}
	}
	return out
}

func (c *qualityController) profile(label string) (model.QualityProfile, bool) {
	for _, p := range c.cfg.Ladder {
		if p.Label == label {
			return p, true
		}
	}
	return model.QualityProfile{}, false
}

func (c *qualityController) Bind(player repository.IMediaController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = player
	c.source = stripQuality(player.Source())
}

func (c *qualityController) Recommend(mbps float64) string {
	tiers := c.tiers()
	if len(tiers) == 0 {
		return model.QualityAuto
	}
	for _, p := range tiers {
		if p.MinBandwidthMbps <= mbps {
			return p.Label
		}
	}
	return tiers[len(tiers)-1].Label
}

func (c *qualityController) Run(ctx context.Context) error {
	if _, err := c.MeasureNetwork(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Initial network measurement failed")
	}
	ticker := time.NewTicker(c.cfg.MeasureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.debouncer.Cancel()
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.MeasureNetwork(ctx); err != nil {
				logger.GetLogger().WithField("error", err).Warn("Network measurement failed")
			}
		}
	}
}

func (c *qualityController) MeasureNetwork(ctx context.Context) (float64, error) {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	mbps, err := c.estimator.Measure(ctx, src)
	if err != nil {
		return 0, err
	}
	c.OnNetworkMeasured(mbps)
	return mbps, nil
}

func (c *qualityController) OnNetworkMeasured(mbps float64) {
	rec := c.Recommend(mbps)
	c.mu.Lock()
	c.state.MeasuredNetworkMbps = mbps
	previous := c.state.RecommendedQuality
	c.state.RecommendedQuality = rec
	switchNeeded := c.cfg.Adaptive && rec != c.state.CurrentQuality
	c.mu.Unlock()

	// Only the latest recommendation may be applied; one that matches the
	// current tier drops whatever switch is still pending.
	if !switchNeeded {
		c.debouncer.Cancel()
		return
	}
	if rec == previous && c.debouncer.Pending() {
		return
	}
	c.debouncer.Trigger(func() {
		if err := c.ChangeQuality(rec); err != nil {
			logger.GetLogger().WithField("error", err).WithField("quality", rec).Warn("Automatic quality switch failed")
		}
	})
}

// OnProgress applies buffer-driven step down/up after a player progress event.
func (c *qualityController) OnProgress() {
	c.mu.Lock()
	player := c.player
	if player == nil {
		c.mu.Unlock()
		return
	}
	ahead := bufferedAhead(player.Buffered(), player.CurrentTime())
	target := c.cfg.BufferTargetSeconds
	percent := ahead / target * 100
	if percent > 100 {
		percent = 100
	}
	c.state.BufferProgressPercent = percent
	if ahead > 0 {
		c.state.IsLoading = false
	}
	mbps := c.state.MeasuredNetworkMbps
	current := c.effectiveTier()
	c.mu.Unlock()

	tiers := c.tiers()
	idx := tierIndex(tiers, current)
	if idx < 0 {
		return
	}
	switch {
	case ahead < target/2 && idx < len(tiers)-1:
		c.apply(tiers[idx+1].Label)
	case ahead > target && mbps > stepUpMinMbps && idx > 0 && tiers[idx-1].MinBandwidthMbps <= mbps:
		c.apply(tiers[idx-1].Label)
	}
}

// effectiveTier resolves auto to the recommended tier, or the top tier before any measurement.
// Callers hold c.mu.
func (c *qualityController) effectiveTier() string {
	if c.state.CurrentQuality != model.QualityAuto {
		return c.state.CurrentQuality
	}
	if c.state.RecommendedQuality != model.QualityAuto {
		return c.state.RecommendedQuality
	}
	if tiers := c.tiers(); len(tiers) > 0 {
		return tiers[0].Label
	}
	return model.QualityAuto
}

func (c *qualityController) apply(label string) {
	if err := c.ChangeQuality(label); err != nil {
		logger.GetLogger().WithField("error", err).WithField("quality", label).Warn("Buffer-driven quality switch failed")
	}
}

func (c *qualityController) ChangeQuality(quality string) error {
	if _, ok := c.profile(quality); !ok {
		return fmt.Errorf("unknown quality %q", quality)
	}
	c.mu.Lock()
	if c.state.CurrentQuality == quality {
		c.mu.Unlock()
		return nil
	}
	c.state.CurrentQuality = quality
	player := c.player
	c.mu.Unlock()

	if player != nil {
		src, err := c.QualityURL(quality)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.state.IsLoading = true
		c.mu.Unlock()
		if err := player.SetSource(src); err != nil {
			return err
		}
		if err := player.Load(); err != nil {
			return err
		}
	}
	logger.GetLogger().WithField("quality", quality).Info("Video quality changed")
	c.hintNextTier(quality)
	return nil
}

// QualityURL returns the bound source tagged with quality; the parameter is omitted for auto.
func (c *qualityController) QualityURL(quality string) (string, error) {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	return withQuality(src, quality)
}

func withQuality(src, quality string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	params := qualityParams{}
	if quality != model.QualityAuto {
		params.Quality = quality
	}
	v, err := query.Values(params)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del("quality")
	for k, vals := range v {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func stripQuality(src string) string {
	out, err := withQuality(src, model.QualityAuto)
	if err != nil {
		return src
	}
	return out
}

// hintNextTier registers a prefetch hint for the tier above quality, expiring after HintTTL.
func (c *qualityController) hintNextTier(quality string) {
	tiers := c.tiers()
	idx := tierIndex(tiers, quality)
	if idx <= 0 {
		return
	}
	next, err := c.QualityURL(tiers[idx-1].Label)
	if err != nil || next == "" {
		return
	}
	c.mu.Lock()
	if old, ok := c.hints[next]; ok {
		old.Stop()
	}
	c.hints[next] = time.AfterFunc(c.cfg.HintTTL, func() {
		c.mu.Lock()
		delete(c.hints, next)
		c.mu.Unlock()
	})
	c.mu.Unlock()
	if c.cfg.Prefetch != nil {
		go c.cfg.Prefetch(next)
	}
}

func (c *qualityController) Hints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.hints))
	for u := range c.hints {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (c *qualityController) State() model.LoadingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.AvailableQualities = append([]string(nil), c.state.AvailableQualities...)
	return s
}

func tierIndex(tiers []model.QualityProfile, label string) int {
	for i, p := range tiers {
		if p.Label == label {
			return i
		}
	}
	return -1
}

func bufferedAhead(ranges []model.TimeRange, current float64) float64 {
	if len(ranges) == 0 {
		return 0
	}
	ahead := ranges[len(ranges)-1].End - current
	if ahead < 0 {
		return 0
	}
	return ahead
}
