package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	pub := NewWatermillPublisher(pubSub, "test")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	t.Run("logout", func(t *testing.T) {
		messages, err := pubSub.Subscribe(ctx, "test.logout")
		require.NoError(t, err)

		require.NoError(t, pub.PublishLogout(ctx, "identity-1", []string{"s1", "s2"}))

		msg := receive(t, messages)
		var event LogoutEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "identity-1", event.IdentityID)
		assert.Equal(t, []string{"s1", "s2"}, event.SessionIDs)
		assert.True(t, fixed.Equal(event.OccurredAt))
	})

	t.Run("theft detected", func(t *testing.T) {
		messages, err := pubSub.Subscribe(ctx, "test.theft_detected")
		require.NoError(t, err)

		require.NoError(t, pub.PublishTheftDetected(ctx, "identity-1", "s1", []string{"s2"}))

		msg := receive(t, messages)
		var event TheftDetectedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "s1", event.SessionID)
		assert.Equal(t, []string{"s2"}, event.Revoked)
	})
}

func TestWatermillPublisher_DefaultPrefix(t *testing.T) {
	pub := NewWatermillPublisher(gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), "")
	assert.Equal(t, "walletauth.logout", pub.LogoutTopic())
	assert.Equal(t, "walletauth.theft_detected", pub.TheftDetectedTopic())
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestWatermillPublisher_PublishError(t *testing.T) {
	pub := NewWatermillPublisher(failingPublisher{}, "")
	err := pub.PublishLogout(context.Background(), "identity-1", nil)
	assert.ErrorContains(t, err, "broker down")
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	assert.NoError(t, p.PublishLogout(context.Background(), "i", nil))
	assert.NoError(t, p.PublishTheftDetected(context.Background(), "i", "s", nil))
}
