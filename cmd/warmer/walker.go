package main

import (
	"context"
	"time"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/clients/gateway"
	"video-gateway/infrastructure/logger"
	"video-gateway/usecase"
)

// walker plays a playlist against the gateway the way a viewer would, keeping
// the next items warm and adapting quality to the measured network.
type walker struct {
	client    gateway.IGatewayClient
	preloader usecase.IPreloader
	quality   usecase.IQualityController
	player    *headlessPlayer
	dwell     time.Duration
	lookahead int
}

type walkSummary struct {
	Played    int
	Preloaded int
	Failed    int
	CacheSize int
}

func (w *walker) Walk(ctx context.Context, urls []string) (*walkSummary, error) {
	w.preloader.SetPlaylist(urls)
	if len(urls) > 1 {
		end := min(len(urls), 1+w.lookahead)
		if err := w.client.PreloadVideos(ctx, urls[1:end]); err != nil {
			logger.GetLogger().WithField("error", err).Warn("Gateway preload request failed")
		}
	}

	summary := &walkSummary{}
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := w.play(ctx, url); err != nil {
			logger.GetLogger().WithField("error", err).WithField("url", url).Warn("Unable to play item")
		} else {
			summary.Played++
		}
		w.preloader.Schedule(i)

		state := w.quality.State()
		logger.GetLogger().WithFields(map[string]interface{}{
			"index":       i,
			"url":         url,
			"quality":     state.CurrentQuality,
			"recommended": state.RecommendedQuality,
			"mbps":        state.MeasuredNetworkMbps,
			"buffer":      state.BufferProgressPercent,
		}).Info("Playlist item played")

		if w.dwell > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(w.dwell):
			}
		}
	}

	w.preloader.Wait()
	for _, t := range w.preloader.Tasks() {
		switch t.Status {
		case model.PreloadLoaded:
			summary.Preloaded++
		case model.PreloadError:
			summary.Failed++
		}
	}
	size, err := w.client.CacheSize(ctx)
	if err != nil {
		return summary, err
	}
	summary.CacheSize = size
	return summary, nil
}

func (w *walker) play(ctx context.Context, url string) error {
	w.player.Stop()
	if err := w.player.SetSource(url); err != nil {
		return err
	}
	w.quality.Bind(w.player)
	if _, err := w.quality.MeasureNetwork(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Debug("Network measurement failed")
	}
	// keep the tier chosen for the previous item
	src, err := w.quality.QualityURL(w.quality.State().CurrentQuality)
	if err != nil {
		return err
	}
	if err := w.player.SetSource(src); err != nil {
		return err
	}
	if err := w.player.Load(); err != nil {
		return err
	}
	if err := w.player.Play(); err != nil {
		return err
	}
	w.player.Wait()
	return nil
}
