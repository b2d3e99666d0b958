package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"video-gateway/domain/model"
)

const (
	encodingIdentity = ""
	encodingZstd     = "zstd"

	// Bodies smaller than this are stored as-is.
	compressMinSize = 1024
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// storedEntry is the wire form of a CachedEntry in external stores.
type storedEntry struct {
	model.CachedEntry
	Encoding string `json:"encoding,omitempty"`
}

// EncodeEntry serializes an entry, compressing textual bodies.
func EncodeEntry(e *model.CachedEntry) ([]byte, error) {
	se := storedEntry{CachedEntry: *e}
	if len(e.Body) >= compressMinSize && isCompressible(http.Header(e.Headers).Get("Content-Type")) {
		se.Body = zstdEncoder.EncodeAll(e.Body, nil)
		se.Encoding = encodingZstd
	}
	return json.Marshal(&se)
}

// DecodeEntry reverses EncodeEntry.
func DecodeEntry(raw []byte) (*model.CachedEntry, error) {
	var se storedEntry
	if err := json.Unmarshal(raw, &se); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	switch se.Encoding {
	case encodingIdentity:
	case encodingZstd:
		body, err := zstdDecoder.DecodeAll(se.Body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress cache entry: %w", err)
		}
		se.Body = body
	default:
		return nil, fmt.Errorf("decode cache entry: unknown encoding %q", se.Encoding)
	}
	entry := se.CachedEntry
	return &entry, nil
}

// Video and image payloads are already compressed.
func isCompressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case strings.Contains(ct, "json"), strings.Contains(ct, "javascript"),
		strings.Contains(ct, "xml"), strings.Contains(ct, "svg"):
		return true
	}
	return false
}
