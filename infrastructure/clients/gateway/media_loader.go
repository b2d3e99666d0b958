package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"video-gateway/domain/repository"
)

const readChunk = 64 << 10

// MediaLoader preloads a video by streaming it through the gateway and discarding the bytes.
type MediaLoader struct {
	http *http.Client
}

var _ repository.IMediaLoader = (*MediaLoader)(nil)

func NewMediaLoader(hc *http.Client) *MediaLoader {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &MediaLoader{http: hc}
}

// Load reports the fraction of Content-Length read so far. Without a length
// only the final 1 is reported.
func (l *MediaLoader) Load(ctx context.Context, url string, onProgress func(buffered float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("preload %s: status %d", url, res.StatusCode)
	}

	buf := make([]byte, readChunk)
	var read int64
	for {
		n, err := res.Body.Read(buf)
		read += int64(n)
		if n > 0 && res.ContentLength > 0 && onProgress != nil {
			onProgress(float64(read) / float64(res.ContentLength))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("preload %s: %w", url, err)
		}
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}
