// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package bus carries UI-local signals between pipeline components over an
// in-process watermill pub/sub. It is unrelated to the network channel: the
// console UI publishes here when the user acts locally (marks a single
// notification read, opens or closes the reminder popup), and interested
// components subscribe without coordinating with each other.
package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/models"
)

// Topics.
const (
	TopicNotificationRead = "notification.read"
	TopicPopupVisibility  = "reminders.popup"
)

// NotificationRead signals that one notification was marked read in the UI.
type NotificationRead struct {
	Category models.Category `json:"category"`
}

// PopupVisibility signals the reminder popup opening or closing.
type PopupVisibility struct {
	Visible bool `json:"visible"`
}

// Bus is the in-process pub/sub for UI-local signals.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates a Bus backed by watermill's gochannel transport.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, newWatermillLogger()),
	}
}

// PublishNotificationRead publishes a mark-read signal for one category.
func (b *Bus) PublishNotificationRead(category models.Category) error {
	return b.publish(TopicNotificationRead, NotificationRead{Category: category})
}

// SubscribeNotificationRead invokes fn for every mark-read signal until ctx
// is canceled.
func (b *Bus) SubscribeNotificationRead(ctx context.Context, fn func(models.Category)) error {
	return subscribe(ctx, b, TopicNotificationRead, func(sig NotificationRead) {
		fn(sig.Category)
	})
}

// PublishPopupVisibility publishes a popup open/close signal.
func (b *Bus) PublishPopupVisibility(visible bool) error {
	return b.publish(TopicPopupVisibility, PopupVisibility{Visible: visible})
}

// SubscribePopupVisibility invokes fn for every popup visibility signal
// until ctx is canceled.
func (b *Bus) SubscribePopupVisibility(ctx context.Context, fn func(bool)) error {
	return subscribe(ctx, b, TopicPopupVisibility, func(sig PopupVisibility) {
		fn(sig.Visible)
	})
}

// Close shuts down the pub/sub and terminates all subscriber goroutines.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func (b *Bus) publish(topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s signal: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), raw)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// subscribe decodes messages of type T from topic and hands them to fn in a
// background goroutine. Malformed payloads are acked and dropped.
func subscribe[T any](ctx context.Context, b *Bus, topic string, fn func(T)) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			var sig T
			if err := json.Unmarshal(msg.Payload, &sig); err != nil {
				logging.Warn().Str("topic", topic).Err(err).Msg("dropping malformed bus signal")
				msg.Ack()
				continue
			}
			fn(sig)
			msg.Ack()
		}
	}()

	return nil
}
