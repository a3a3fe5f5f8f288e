// Package events carries dirty-model notifications between the definitions
// services of mounted bots and the application orchestrator.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/edgard/nlud/internal/logger"
)

// TopicDirtyModel is the topic DirtyModel events are published on.
const TopicDirtyModel = "nlu.dirty_model"

// DirtyModel reports that the latest model of a bot language is not held by
// the engine and needs training.
type DirtyModel struct {
	BotID    string `json:"botId"`
	Language string `json:"language"`
	ModelID  string `json:"modelId"`
}

// Bus is an in-process pub/sub for application events.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// NewBus creates an in-process bus. Messages published while a topic has no
// subscriber are dropped.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "events")

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger.NewWatermill(log))

	return &Bus{pubsub: pubsub, logger: log}
}

// Publisher returns the publishing side of the bus.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// Subscribe returns the messages of topic until ctx is done or the bus is closed.
// Each message must be acked or nacked before the next one is delivered.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close closes the bus and every subscription channel.
func (b *Bus) Close() error {
	b.logger.Debug("Closing event bus")
	return b.pubsub.Close()
}

// PublishDirtyModel publishes ev on TopicDirtyModel.
func PublishDirtyModel(pub message.Publisher, ev DirtyModel) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode dirty model event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("bot_id", ev.BotID)
	msg.Metadata.Set("language", ev.Language)

	if err := pub.Publish(TopicDirtyModel, msg); err != nil {
		return fmt.Errorf("failed to publish dirty model event for %s/%s: %w", ev.BotID, ev.Language, err)
	}
	return nil
}

// DecodeDirtyModel decodes the payload of a message published by PublishDirtyModel.
func DecodeDirtyModel(msg *message.Message) (DirtyModel, error) {
	var ev DirtyModel
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return DirtyModel{}, fmt.Errorf("failed to decode dirty model event %s: %w", msg.UUID, err)
	}
	if ev.BotID == "" || ev.Language == "" {
		return DirtyModel{}, fmt.Errorf("dirty model event %s is missing bot or language", msg.UUID)
	}
	return ev, nil
}
