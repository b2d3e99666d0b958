package model

import "net/http"

// Strategy identifies how a request is handled at the network boundary.
type Strategy string

const (
	StrategyPassthrough Strategy = "passthrough"
	StrategyVideo       Strategy = "video"
	StrategyStatic      Strategy = "static"
	StrategyAPI         Strategy = "api"
	StrategyDefault     Strategy = "default"
)

// CacheStatus is reported in the X-Cache header.
type CacheStatus string

const (
	CacheHit    CacheStatus = "HIT"
	CacheMiss   CacheStatus = "MISS"
	CacheBypass CacheStatus = "BYPASS"
)

// Fallback is the synthetic response served when a strategy cannot produce anything.
type Fallback struct {
	StatusCode int
	Body       string
}

// Fallbacks maps each caching strategy to its synthetic failure response.
var Fallbacks = map[Strategy]Fallback{
	StrategyVideo:   {StatusCode: http.StatusNotFound, Body: "Video not available"},
	StrategyStatic:  {StatusCode: http.StatusNotFound, Body: "Asset not available"},
	StrategyAPI:     {StatusCode: http.StatusServiceUnavailable, Body: "API not available"},
	StrategyDefault: {StatusCode: http.StatusNotFound, Body: "Resource not available"},
}

// SyntheticResponse builds the plain-text fallback for s.
func SyntheticResponse(s Strategy) *Response {
	fb, ok := Fallbacks[s]
	if !ok {
		fb = Fallbacks[StrategyDefault]
	}
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{StatusCode: fb.StatusCode, Headers: h, Body: []byte(fb.Body)}
}

// Result is what the router hands back for a request.
type Result struct {
	Response *Response
	Strategy Strategy
	Cache    CacheStatus
}
