package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

type recordingLive struct {
	seen []models.Notification
}

func (r *recordingLive) BroadcastNotification(n models.Notification) {
	r.seen = append(r.seen, n)
}

func newTestSurface(t *testing.T, history int) (*RedisSurface, *recordingLive) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	live := &recordingLive{}
	return NewRedisSurface(client, "device-1", history, live), live
}

func TestEnsureChannelIsIdempotent(t *testing.T) {
	surface, _ := newTestSurface(t, 10)
	ctx := context.Background()

	first := models.NotificationChannel{ID: "chat_message", Name: "Chat Message", Importance: models.ImportanceDefault}
	created, err := surface.EnsureChannel(ctx, first)
	if err != nil || !created {
		t.Fatalf("first EnsureChannel = %v, %v", created, err)
	}

	renamed := first
	renamed.Name = "Renamed"
	created, err = surface.EnsureChannel(ctx, renamed)
	if err != nil || created {
		t.Fatalf("second EnsureChannel = %v, %v", created, err)
	}

	stored, err := surface.Channel(ctx, "chat_message")
	if err != nil || stored == nil || stored.Name != "Chat Message" {
		t.Fatalf("expected original channel kept, got %+v, %v", stored, err)
	}
}

func TestChannelReturnsNilWhenMissing(t *testing.T) {
	surface, _ := newTestSurface(t, 10)

	channel, err := surface.Channel(context.Background(), "nope")
	if err != nil || channel != nil {
		t.Fatalf("expected nil channel, got %+v, %v", channel, err)
	}
}

func TestPostKeepsNewestFirstWithinHistory(t *testing.T) {
	surface, live := newTestSurface(t, 2)
	ctx := context.Background()

	for _, id := range []string{"n-1", "n-2", "n-3"} {
		if err := surface.Post(ctx, models.Notification{ID: id, Title: "Ana", PostedAt: time.Now()}); err != nil {
			t.Fatalf("Post %s: %v", id, err)
		}
	}

	posted, err := surface.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(posted) != 2 || posted[0].ID != "n-3" || posted[1].ID != "n-2" {
		t.Fatalf("unexpected history: %+v", posted)
	}
	if len(live.seen) != 3 {
		t.Fatalf("expected 3 live broadcasts, got %d", len(live.seen))
	}
}
