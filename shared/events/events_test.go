package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishAndConsume(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	var received []Event
	sub := NewSubscriber(client, SubscriberConfig{
		Group:         "test-group",
		Consumer:      "test-consumer",
		Stream:        AccountEventsStream,
		BlockDuration: 10 * time.Millisecond,
		StartID:       "0",
		Handler: func(ctx context.Context, event Event) error {
			received = append(received, event)
			return nil
		},
	})
	require.NoError(t, sub.EnsureGroup(ctx, "0"))

	pub := NewPublisher(client)
	require.NoError(t, pub.Publish(ctx, AccountEventsStream, AccountUpdated, AccountUpdatedEvent{
		Username: "alice",
		Fields:   []string{"goals"},
	}))

	require.NoError(t, sub.ReadOnce(ctx))
	require.Len(t, received, 1)
	assert.Equal(t, AccountUpdated, received[0].Type)

	var data AccountUpdatedEvent
	require.NoError(t, DecodeData(received[0], &data))
	assert.Equal(t, "alice", data.Username)
	assert.Equal(t, []string{"goals"}, data.Fields)

	pending, err := client.XPending(ctx, AccountEventsStream, "test-group").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "handled messages are acknowledged")
}

func TestFailedMessagesStayPending(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	sub := NewSubscriber(client, SubscriberConfig{
		Group:         "test-group",
		Consumer:      "test-consumer",
		Stream:        AccountEventsStream,
		BlockDuration: 10 * time.Millisecond,
		Handler: func(ctx context.Context, event Event) error {
			return errors.New("boom")
		},
	})
	require.NoError(t, sub.EnsureGroup(ctx, "0"))
	require.NoError(t, NewPublisher(client).Publish(ctx, AccountEventsStream, AccountDeactivated, AccountDeactivatedEvent{Username: "bob"}))

	require.NoError(t, sub.ReadOnce(ctx))

	pending, err := client.XPending(ctx, AccountEventsStream, "test-group").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count)
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	var handled int
	sub := NewSubscriber(client, SubscriberConfig{
		Group:         "test-group",
		Consumer:      "test-consumer",
		Stream:        AccountEventsStream,
		BlockDuration: 10 * time.Millisecond,
		Handler: func(ctx context.Context, event Event) error {
			handled++
			return nil
		},
	})
	require.NoError(t, sub.EnsureGroup(ctx, "0"))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: AccountEventsStream, Values: map[string]any{"event": "{not json"}}).Err())
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: AccountEventsStream, Values: map[string]any{"other": "x"}}).Err())

	require.NoError(t, sub.ReadOnce(ctx))

	assert.Zero(t, handled)
	pending, err := client.XPending(ctx, AccountEventsStream, "test-group").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	sub := NewSubscriber(client, SubscriberConfig{Group: "g", Consumer: "c", Stream: "s"})

	require.NoError(t, sub.EnsureGroup(ctx, ""))
	require.NoError(t, sub.EnsureGroup(ctx, ""))
}

func TestSignalDeliversInOrder(t *testing.T) {
	sig := NewSignal[string]("test")
	var calls []string
	sig.Connect("first", func(ctx context.Context, p string) error {
		calls = append(calls, "first:"+p)
		return nil
	})
	sig.Connect("second", func(ctx context.Context, p string) error {
		calls = append(calls, "second:"+p)
		return nil
	})

	require.NoError(t, sig.Send(context.Background(), "x"))
	assert.Equal(t, []string{"first:x", "second:x"}, calls)
}

func TestSignalStopsOnFirstError(t *testing.T) {
	sig := NewSignal[int]("retire_mailings")
	boom := errors.New("boom")
	var secondCalled bool
	sig.Connect("failing", func(ctx context.Context, p int) error { return boom })
	sig.Connect("second", func(ctx context.Context, p int) error {
		secondCalled = true
		return nil
	})

	err := sig.Send(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"failing"`)
	assert.False(t, secondCalled)
}

func TestSignalConnectReplacesAndDisconnects(t *testing.T) {
	sig := NewSignal[int]("test")
	var got []string
	sig.Connect("r", func(ctx context.Context, p int) error { got = append(got, "old"); return nil })
	sig.Connect("r", func(ctx context.Context, p int) error { got = append(got, "new"); return nil })

	require.NoError(t, sig.Send(context.Background(), 1))
	sig.Disconnect("r")
	require.NoError(t, sig.Send(context.Background(), 2))

	assert.Equal(t, []string{"new"}, got)
}

func TestForwardPublishesSignalPayloads(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	sig := NewSignal[RetireMailingsEvent]("retire_mailings")
	sig.Connect("mailing_stream", Forward[RetireMailingsEvent](NewPublisher(client), MailingEventsStream, UserRetireMailings))
	require.NoError(t, sig.Send(ctx, RetireMailingsEvent{Username: "alice", Orgs: []string{"MITx"}}))

	msgs, err := client.XRange(ctx, MailingEventsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Values["event"], `"user.retire_mailings"`)
}
