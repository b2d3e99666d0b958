package usecase

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"video-gateway/domain/model"
)

var (
	videoExtensions = map[string]struct{}{
		".mp4": {}, ".webm": {}, ".ogg": {}, ".avi": {}, ".mov": {},
	}
	staticExtensions = map[string]struct{}{
		".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
		".svg": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	}
	extensionSchemes = map[string]struct{}{
		"chrome-extension": {}, "moz-extension": {}, "safari-extension": {},
		"safari-web-extension": {}, "ms-browser-extension": {},
	}
)

// Classifier maps a request to the strategy that serves it.
type Classifier struct {
	apiPrefix string
}

func NewClassifier(apiPrefix string) *Classifier {
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	return &Classifier{apiPrefix: apiPrefix}
}

func (c *Classifier) Classify(req *model.Request) model.Strategy {
	if req.Method != http.MethodGet {
		return model.StrategyPassthrough
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return model.StrategyDefault
	}
	if _, ok := extensionSchemes[strings.ToLower(u.Scheme)]; ok {
		return model.StrategyPassthrough
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := videoExtensions[ext]; ok {
		return model.StrategyVideo
	}
	if _, ok := staticExtensions[ext]; ok {
		return model.StrategyStatic
	}
	if strings.HasPrefix(u.Path, c.apiPrefix) {
		return model.StrategyAPI
	}
	return model.StrategyDefault
}
