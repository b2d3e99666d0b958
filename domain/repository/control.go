package repository

import (
	"context"

	"video-gateway/domain/model"
)

// ControlHandler processes one control message and returns its reply, if any.
type ControlHandler func(ctx context.Context, msg model.ControlMessage) (interface{}, error)
