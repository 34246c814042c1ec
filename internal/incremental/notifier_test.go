package incremental

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, opts ...NotifierOption) *Notifier {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewNotifier(client, "openindex:changes", opts...)
}

func TestEnsureChannelIsIdempotent(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()

	require.NoError(t, n.EnsureChannel(ctx))
	require.NoError(t, n.EnsureChannel(ctx))

	members, err := n.client.SMembers(ctx, "openindex:channels").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"openindex:changes"}, members)
}

func TestPublishListenRoundTrip(t *testing.T) {
	n := newTestNotifier(t, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := n.Listen(ctx)
	require.NoError(t, err)

	note := Notification{
		Operation:  OpInsert,
		Table:      "source_documents",
		PrimaryKey: "doc-1",
		New:        map[string]any{"name": "readme.md"},
	}
	require.NoError(t, n.Publish(ctx, note))

	select {
	case got := <-stream:
		assert.Equal(t, OpInsert, got.Operation)
		assert.Equal(t, "source_documents", got.Table)
		assert.Equal(t, "doc-1", got.PrimaryKey)
		assert.Equal(t, "readme.md", got.New["name"])
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestDebounceCollapsesSamePrimaryKey(t *testing.T) {
	n := newTestNotifier(t, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := n.Listen(ctx)
	require.NoError(t, err)

	// Three rapid updates to the same row and one to another.
	for i := 0; i < 3; i++ {
		require.NoError(t, n.Publish(ctx, Notification{
			Operation:  OpUpdate,
			Table:      "source_documents",
			PrimaryKey: "doc-1",
			New:        map[string]any{"rev": float64(i)},
		}))
	}
	require.NoError(t, n.Publish(ctx, Notification{
		Operation:  OpDelete,
		Table:      "source_documents",
		PrimaryKey: "doc-2",
	}))

	var got []Notification
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case note := <-stream:
			got = append(got, note)
		case <-deadline:
			t.Fatalf("timed out with %d notifications", len(got))
		}
	}

	// Only the latest update for doc-1 survives the window; no third
	// delivery arrives.
	assert.Equal(t, "doc-1", got[0].PrimaryKey)
	assert.Equal(t, float64(2), got[0].New["rev"])
	assert.Equal(t, "doc-2", got[1].PrimaryKey)
	assert.Equal(t, OpDelete, got[1].Operation)

	select {
	case extra := <-stream:
		t.Fatalf("unexpected extra notification for %s", extra.PrimaryKey)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	n := newTestNotifier(t, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := n.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, n.client.Publish(ctx, "openindex:changes", "{not json").Err())
	require.NoError(t, n.Publish(ctx, Notification{
		Operation:  OpInsert,
		Table:      "source_documents",
		PrimaryKey: "doc-1",
	}))

	select {
	case got := <-stream:
		assert.Equal(t, "doc-1", got.PrimaryKey)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid notification")
	}
}

func TestListenClosesOnCancel(t *testing.T) {
	n := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := n.Listen(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on cancel")
	}
}
