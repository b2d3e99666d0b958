package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"video-gateway/domain/model"
	"video-gateway/infrastructure/logger"
)

// MessagesPath is where the gateway accepts control messages.
const MessagesPath = "/_gateway/messages"

// IGatewayClient sends control messages to a gateway. Every call is a silent
// no-op when no gateway is configured or the gateway is not ready yet.
type IGatewayClient interface {
	PreloadVideos(ctx context.Context, urls []string) error
	ClearCache(ctx context.Context, namespaces ...model.CacheNamespace) error
	CacheSize(ctx context.Context) (int, error)
	Send(ctx context.Context, msg model.ControlMessage) (json.RawMessage, error)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewGatewayClient(baseURL, token string, timeout time.Duration) IGatewayClient {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type controlReply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Reply   json.RawMessage `json:"reply"`
}

func (c *Client) Send(ctx context.Context, msg model.ControlMessage) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.GetLogger().WithField("error", err).WithField("type", msg.Type).Debug("Gateway unreachable, skipping control message")
		return nil, nil
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusServiceUnavailable {
		logger.GetLogger().WithField("type", msg.Type).Debug("Gateway not ready, skipping control message")
		return nil, nil
	}
	var body controlReply
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode gateway reply (status %d): %w", res.StatusCode, err)
	}
	if res.StatusCode != http.StatusOK || !body.Success {
		return nil, fmt.Errorf("gateway rejected %s: %d %s", msg.Type, res.StatusCode, body.Message)
	}
	return body.Reply, nil
}

func (c *Client) PreloadVideos(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	data, err := json.Marshal(model.PreloadVideosData{VideoURLs: urls})
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, model.ControlMessage{Type: model.MessagePreloadVideos, Data: data})
	return err
}

func (c *Client) ClearCache(ctx context.Context, namespaces ...model.CacheNamespace) error {
	msg := model.ControlMessage{Type: model.MessageClearCache}
	if len(namespaces) > 0 {
		data, err := json.Marshal(map[string][]model.CacheNamespace{"namespaces": namespaces})
		if err != nil {
			return err
		}
		msg.Data = data
	}
	_, err := c.Send(ctx, msg)
	return err
}

func (c *Client) CacheSize(ctx context.Context) (int, error) {
	raw, err := c.Send(ctx, model.ControlMessage{Type: model.MessageGetCacheSize})
	if err != nil || len(raw) == 0 {
		return 0, err
	}
	var reply model.CacheSizeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, err
	}
	if reply.Type != model.MessageCacheSize {
		return 0, errors.New("unexpected reply type " + reply.Type)
	}
	return reply.Size, nil
}
