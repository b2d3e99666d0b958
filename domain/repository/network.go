package repository

import (
	"context"
	"net/http"

	"video-gateway/domain/model"
)

// INetwork performs real requests against the origin.
type INetwork interface {
	// Fetch performs req and buffers the whole body.
	Fetch(ctx context.Context, req *model.Request) (*model.Response, error)
	// Head issues a HEAD request and returns the response headers and content length.
	Head(ctx context.Context, url string) (http.Header, int64, error)
}
