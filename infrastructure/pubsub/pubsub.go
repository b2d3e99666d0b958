package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// NewPubSub connects to Google Pub/Sub. An empty project disables the transport.
func NewPubSub(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id not configured")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

type IControlPubSub interface {
	// Publish broadcasts a control message to every gateway subscribed to topic.
	Publish(ctx context.Context, topic string, msg model.ControlMessage) (string, error)
	// Subscribe delivers messages from the subscription to the handler until ctx ends.
	Subscribe(ctx context.Context, subID string) error
}

type ControlPubSub struct {
	PubSubClient *pubsub.Client
	handler      repository.ControlHandler
}

func NewControlPubSub(pubSubClient *pubsub.Client, handler repository.ControlHandler) IControlPubSub {
	return &ControlPubSub{PubSubClient: pubSubClient, handler: handler}
}

func (c *ControlPubSub) Publish(ctx context.Context, topicName string, msg model.ControlMessage) (string, error) {
	if c.PubSubClient == nil {
		return "", errors.New("pubsub client not configured")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	topic := c.PubSubClient.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return "", err
	}
	if !exists {
		logger.GetLogger().WithField("topic", topicName).Info("Topic doesn't exist - creating it")
		if topic, err = c.PubSubClient.CreateTopic(ctx, topicName); err != nil {
			return "", err
		}
	}
	defer topic.Stop()

	serverID, err := topic.Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
	if err != nil {
		return "", err
	}
	logger.GetLogger().WithField("server ID", serverID).WithField("type", msg.Type).Info("Control message published")
	return serverID, nil
}

func (c *ControlPubSub) Subscribe(ctx context.Context, subID string) error {
	if c.PubSubClient == nil || subID == "" {
		logger.GetLogger().Info("PubSub control subscription disabled")
		return nil
	}
	logger.GetLogger().WithField("subID", subID).Info("PubSub starting...")
	err := c.PubSubClient.Subscription(subID).Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := c.Deliver(ctx, m.Data); err != nil && errors.Is(err, model.ErrWorkerNotReady) {
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Deliver decodes one payload and hands it to the handler. Replies are only logged.
func (c *ControlPubSub) Deliver(ctx context.Context, payload []byte) error {
	var msg model.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Dropping malformed control message")
		return err
	}
	reply, err := c.handler(ctx, msg)
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("type", msg.Type).Warn("Control message failed")
		return err
	}
	logger.GetLogger().WithField("type", msg.Type).WithField("reply", reply).Info("Control message handled")
	return nil
}
