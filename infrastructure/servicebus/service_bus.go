package servicebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

const receiveBatch = 10

// NewServiceBus connects to <namespace>.servicebus.windows.net with the default Azure credential chain.
func NewServiceBus(ctx context.Context, namespace string) (*azservicebus.Client, error) {
	if namespace == "" {
		return nil, errors.New("service bus namespace not configured")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azservicebus.NewClient(namespace+".servicebus.windows.net", cred, nil)
	if err != nil {
		return nil, fmt.Errorf("service bus client: %w", err)
	}
	return client, nil
}

type IControlServiceBus interface {
	SendMessage(ctx context.Context, msg model.ControlMessage) error
	// Receive drains the queue into the handler until ctx ends.
	Receive(ctx context.Context) error
}

type ControlServiceBus struct {
	AzservicebusClient *azservicebus.Client
	queue              string
	handler            repository.ControlHandler
}

func NewControlServiceBus(azServiceBusClient *azservicebus.Client, queue string, handler repository.ControlHandler) IControlServiceBus {
	return &ControlServiceBus{AzservicebusClient: azServiceBusClient, queue: queue, handler: handler}
}

func (s *ControlServiceBus) SendMessage(ctx context.Context, msg model.ControlMessage) error {
	if s.AzservicebusClient == nil {
		return errors.New("service bus client not configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sender, err := s.AzservicebusClient.NewSender(s.queue, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return err
	}
	defer func() {
		if err := sender.Close(context.Background()); err != nil {
			logger.GetLogger().
				WithField("error", err).
				Error("Error while closing sender.")
		}
	}()

	if err := sender.SendMessage(ctx, &azservicebus.Message{Body: body, ContentType: strPtr("application/json")}, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

func (s *ControlServiceBus) Receive(ctx context.Context) error {
	if s.AzservicebusClient == nil || s.queue == "" {
		logger.GetLogger().Info("Service Bus control queue disabled")
		return nil
	}
	receiver, err := s.AzservicebusClient.NewReceiverForQueue(s.queue, nil)
	if err != nil {
		return fmt.Errorf("service bus receiver: %w", err)
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			logger.GetLogger().
				WithField("error", err).
				Error("Error while closing receiver.")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, receiveBatch, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.GetLogger().WithField("error", err).Warn("Service Bus receive failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, m := range messages {
			if err := s.Deliver(ctx, m.Body); errors.Is(err, model.ErrWorkerNotReady) {
				_ = receiver.AbandonMessage(ctx, m, nil)
				continue
			}
			if err := receiver.CompleteMessage(ctx, m, nil); err != nil {
				logger.GetLogger().WithField("error", err).Warn("Unable to complete control message")
			}
		}
	}
}

// Deliver decodes one message body and hands it to the handler. Replies are only logged.
func (s *ControlServiceBus) Deliver(ctx context.Context, body []byte) error {
	var msg model.ControlMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Dropping malformed control message")
		return err
	}
	reply, err := s.handler(ctx, msg)
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("type", msg.Type).Warn("Control message failed")
		return err
	}
	logger.GetLogger().WithField("type", msg.Type).WithField("reply", reply).Info("Control message handled")
	return nil
}

func strPtr(s string) *string { return &s }
