package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/ports"
)

// DefaultTopicPrefix prefixes every topic published by WatermillPublisher.
const DefaultTopicPrefix = "walletauth"

// LogoutEvent is published when sessions end through logout
type LogoutEvent struct {
	IdentityID string    `json:"identityId"`
	SessionIDs []string  `json:"sessionIds"`
	OccurredAt time.Time `json:"occurredAt"`
}

// TheftDetectedEvent is published when a refresh token replay revokes an identity's sessions
type TheftDetectedEvent struct {
	IdentityID string    `json:"identityId"`
	SessionID  string    `json:"sessionId"`
	Revoked    []string  `json:"revoked"`
	OccurredAt time.Time `json:"occurredAt"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher.
// An empty prefix falls back to DefaultTopicPrefix.
func NewWatermillPublisher(publisher message.Publisher, prefix string) *WatermillPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    prefix,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// LogoutTopic returns the topic logout events are published to.
func (p *WatermillPublisher) LogoutTopic() string { return p.prefix + ".logout" }

// TheftDetectedTopic returns the topic theft events are published to.
func (p *WatermillPublisher) TheftDetectedTopic() string { return p.prefix + ".theft_detected" }

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, identityID string, sessionIDs []string) error {
	return p.publish(ctx, p.LogoutTopic(), LogoutEvent{
		IdentityID: identityID,
		SessionIDs: sessionIDs,
		OccurredAt: p.now().UTC(),
	})
}

// PublishTheftDetected publishes a theft event
func (p *WatermillPublisher) PublishTheftDetected(ctx context.Context, identityID, sessionID string, revoked []string) error {
	return p.publish(ctx, p.TheftDetectedTopic(), TheftDetectedEvent{
		IdentityID: identityID,
		SessionID:  sessionID,
		Revoked:    revoked,
		OccurredAt: p.now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NoopPublisher drops every event. Used when events are disabled.
type NoopPublisher struct{}

var _ ports.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishLogout(context.Context, string, []string) error { return nil }

func (NoopPublisher) PublishTheftDetected(context.Context, string, string, []string) error {
	return nil
}
