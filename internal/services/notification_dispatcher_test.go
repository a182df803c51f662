package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
)

type memorySurface struct {
	mu       sync.Mutex
	channels map[string]models.NotificationChannel
	ensured  int
	posted   map[string]models.Notification
	postErr  error
}

func newMemorySurface() *memorySurface {
	return &memorySurface{
		channels: map[string]models.NotificationChannel{},
		posted:   map[string]models.Notification{},
	}
}

func (s *memorySurface) EnsureChannel(_ context.Context, channel models.NotificationChannel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured++
	if _, ok := s.channels[channel.ID]; ok {
		return false, nil
	}
	s.channels[channel.ID] = channel
	return true, nil
}

func (s *memorySurface) Post(_ context.Context, notification models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return s.postErr
	}
	s.posted[notification.ID] = notification
	return nil
}

func TestOnPushBuildsChatNotification(t *testing.T) {
	surface := newMemorySurface()
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	n, err := dispatcher.OnPush(context.Background(), models.NotificationRequest{UserID: "42", Name: "Ana", Message: "yo"})
	if err != nil {
		t.Fatalf("OnPush: %v", err)
	}
	if n.Title != "Ana" || n.Body != "yo" || n.BigText != "yo" {
		t.Fatalf("unexpected content: %+v", n)
	}
	if n.Tap.CounterpartID != "42" || n.Tap.CounterpartName != "Ana" || !n.Tap.ClearTask {
		t.Fatalf("unexpected tap action: %+v", n.Tap)
	}
	if n.ChannelID != ChatChannelID || !n.AutoCancel || n.Priority != models.ImportanceDefault {
		t.Fatalf("unexpected presentation: %+v", n)
	}
	if _, ok := surface.posted[n.ID]; !ok {
		t.Fatal("notification was not posted")
	}
}

func TestConcurrentPushesGetDistinctIDs(t *testing.T) {
	surface := newMemorySurface()
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	var wg sync.WaitGroup
	for _, counterpart := range []string{"1", "2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := dispatcher.OnPush(context.Background(), models.NotificationRequest{UserID: id, Name: "n" + id, Message: "hello"}); err != nil {
				t.Errorf("OnPush %s: %v", id, err)
			}
		}(counterpart)
	}
	wg.Wait()

	if len(surface.posted) != 2 {
		t.Fatalf("expected two visible notifications, got %d", len(surface.posted))
	}
	if len(surface.channels) != 1 || surface.ensured != 2 {
		t.Fatalf("expected one channel ensured twice, got %d channels and %d calls", len(surface.channels), surface.ensured)
	}
}

func TestRepeatedPushesFromSameCounterpartAreNotGrouped(t *testing.T) {
	surface := newMemorySurface()
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := dispatcher.OnPush(context.Background(), models.NotificationRequest{UserID: "42", Name: "Ana", Message: "again"}); err != nil {
			t.Fatalf("OnPush: %v", err)
		}
	}
	if len(surface.posted) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(surface.posted))
	}
}

func TestOnPushRejectsMalformedPayload(t *testing.T) {
	surface := newMemorySurface()
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	if _, err := dispatcher.OnPush(context.Background(), models.NotificationRequest{Name: "Ana", Message: "yo"}); !errors.Is(err, ErrMalformedPush) {
		t.Fatalf("expected ErrMalformedPush, got %v", err)
	}
	if len(surface.posted) != 0 || surface.ensured != 0 {
		t.Fatal("malformed payload must not reach the surface")
	}
}

func TestHandlePushTaskDecodesFlatPayload(t *testing.T) {
	surface := newMemorySurface()
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	task, err := NewPushTask(map[string]string{"userId": "42", "name": "Ana", "fcmToken": "tok", "message": "yo"})
	if err != nil {
		t.Fatalf("NewPushTask: %v", err)
	}
	if task.Type != TaskPushMessage {
		t.Fatalf("unexpected task type %q", task.Type)
	}

	if err := dispatcher.HandlePushTask(context.Background(), task); err != nil {
		t.Fatalf("HandlePushTask: %v", err)
	}
	for _, n := range surface.posted {
		if n.Tap.CounterpartFCM != "tok" {
			t.Fatalf("expected token in tap action, got %+v", n.Tap)
		}
	}
}

func TestHandlePushTaskSkipsRetryForMalformedPayload(t *testing.T) {
	dispatcher := NewNotificationDispatcher(newMemorySurface(), zerolog.Nop())

	payload, _ := json.Marshal(map[string]string{"name": "Ana"})
	err := dispatcher.HandlePushTask(context.Background(), queue.Task{Type: TaskPushMessage, Payload: payload})
	if !errors.Is(err, ErrMalformedPush) || !errors.Is(err, queue.ErrSkipRetry) {
		t.Fatalf("expected malformed skip-retry error, got %v", err)
	}

	err = dispatcher.HandlePushTask(context.Background(), queue.Task{Type: TaskPushMessage, Payload: []byte("not json")})
	if !errors.Is(err, queue.ErrSkipRetry) {
		t.Fatalf("expected skip-retry for garbage, got %v", err)
	}
}

func TestHandlePushTaskRetriesSurfaceFailures(t *testing.T) {
	surface := newMemorySurface()
	surface.postErr = errors.New("redis down")
	dispatcher := NewNotificationDispatcher(surface, zerolog.Nop())

	task, _ := NewPushTask(map[string]string{"userId": "42", "message": "yo"})
	err := dispatcher.HandlePushTask(context.Background(), task)
	if err == nil || errors.Is(err, queue.ErrSkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestNewPushTaskValidatesPayload(t *testing.T) {
	if _, err := NewPushTask(map[string]string{"userId": "42"}); !errors.Is(err, ErrMalformedPush) {
		t.Fatalf("expected ErrMalformedPush, got %v", err)
	}
}
