package origin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

type Client struct {
	http *http.Client
}

var _ repository.INetwork = (*Client)(nil)

// NewClient returns the network used to reach the origin.
func NewClient(timeout time.Duration) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout})
}

func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{http: hc}
}

func (c *Client) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	httpReq.Header = stripHopHeaders(req.Headers)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	return &model.Response{
		StatusCode: res.StatusCode,
		Headers:    stripHopHeaders(res.Header),
		Body:       payload,
	}, nil
}

func (c *Client) Head(ctx context.Context, url string) (http.Header, int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, 0, err
	}
	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return nil, 0, fmt.Errorf("head %s: status %d", url, res.StatusCode)
	}
	return res.Header, res.ContentLength, nil
}

func stripHopHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	return out
}
