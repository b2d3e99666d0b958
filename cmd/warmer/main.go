// Command warmer walks a playlist through the gateway like a viewer would,
// keeping upcoming videos warm and adapting quality to the network.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"video-gateway/infrastructure/clients/gateway"
	"video-gateway/infrastructure/clients/origin"
	"video-gateway/infrastructure/configuration"
	"video-gateway/infrastructure/filecsv"
	"video-gateway/infrastructure/logger"
	"video-gateway/infrastructure/utils"
	"video-gateway/usecase"
)

func main() {
	var (
		gatewayURL  string
		playlist    string
		secret      string
		dwell       time.Duration
		duration    float64
		adaptive    bool
		bufferLimit float64
	)
	flag.StringVar(&gatewayURL, "gateway", fmt.Sprintf("http://localhost:%d", configuration.C.App.Port), "gateway base URL")
	flag.StringVar(&playlist, "playlist", "", "file with one video path or URL per line (default: positional args)")
	flag.StringVar(&secret, "secret", configuration.C.App.SecretKey, "secret used to sign control-channel tokens")
	flag.DurationVar(&dwell, "dwell", 0, "time spent on each item after it is buffered")
	flag.Float64Var(&duration, "duration", 60, "assumed duration of each video in seconds")
	flag.BoolVar(&adaptive, "adaptive", true, "switch quality automatically")
	flag.Float64Var(&bufferLimit, "buffer-target", configuration.C.Quality.BufferTargetSeconds, "buffer target in seconds")
	flag.Parse()

	urls, err := readPlaylist(playlist, flag.Args(), gatewayURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "Error: empty playlist")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	var token string
	if secret != "" {
		if token, err = utils.GenerateToken(map[string]interface{}{"sub": "warmer"}, secret, time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	w := newWalker(ctx, gateway.NewGatewayClient(gatewayURL, token, 10*time.Second), walkerConfig{
		Preload: usecase.PreloaderConfig{
			PreloadCount:          configuration.C.Preload.Count,
			PreloadDistance:       configuration.C.Preload.Distance,
			MaxConcurrentPreloads: configuration.C.Preload.MaxConcurrent,
		},
		Quality: usecase.QualityConfig{
			BufferTargetSeconds: bufferLimit,
			Adaptive:            adaptive,
		},
		Dwell:           dwell,
		DurationSeconds: duration,
	})
	defer w.preloader.Close()

	summary, err := w.Walk(ctx, urls)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Playlist walk stopped")
		os.Exit(2)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"played":    summary.Played,
		"preloaded": summary.Preloaded,
		"failed":    summary.Failed,
		"cacheSize": summary.CacheSize,
	}).Info("Playlist walk finished")
}

type walkerConfig struct {
	Preload         usecase.PreloaderConfig
	Quality         usecase.QualityConfig
	Dwell           time.Duration
	DurationSeconds float64
}

func newWalker(ctx context.Context, client gateway.IGatewayClient, cfg walkerConfig) *walker {
	hc := &http.Client{Timeout: 5 * time.Minute}
	loader := gateway.NewMediaLoader(hc)
	preloader := usecase.NewPreloader(loader, nil, cfg.Preload)

	player := newHeadlessPlayer(ctx, loader, cfg.DurationSeconds)
	// next-tier hints are warmed through the preloader
	cfg.Quality.Prefetch = func(url string) { preloader.Enqueue(url) }
	quality := usecase.NewQualityController(usecase.NewBandwidthProbe(origin.NewClientWithHTTP(hc), nil), cfg.Quality)
	player.onProgress = quality.OnProgress

	return &walker{
		client:    client,
		preloader: preloader,
		quality:   quality,
		player:    player,
		dwell:     cfg.Dwell,
		lookahead: max(cfg.Preload.PreloadCount, 1),
	}
}

// readPlaylist resolves relative entries against the gateway URL.
func readPlaylist(path string, args []string, base string) ([]string, error) {
	entries := args
	if path != "" {
		rows, err := filecsv.ReadPlaylist(path)
		if err != nil {
			return nil, err
		}
		entries = make([]string, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, row.URL)
		}
	}
	base = strings.TrimRight(base, "/")
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, "#") {
			continue
		}
		if !strings.Contains(e, "://") {
			e = base + "/" + strings.TrimLeft(e, "/")
		}
		urls = append(urls, e)
	}
	return urls, nil
}
