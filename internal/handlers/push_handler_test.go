package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
	"github.com/saeid-a/SigmaChatSync/internal/services"
)

type stubEnqueuer struct {
	tasks []queue.Task
	opts  []queue.EnqueueOption
	err   error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, task queue.Task, opts ...queue.EnqueueOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts...)
	return "task-1", nil
}

type stubNotificationList struct {
	lastLimit int
	items     []models.Notification
}

func (s *stubNotificationList) List(_ context.Context, limit int) ([]models.Notification, error) {
	s.lastLimit = limit
	return s.items, nil
}

func newPushApp(tasks *stubEnqueuer, list *stubNotificationList) *fiber.App {
	handler := NewPushHandler(tasks, "notifications", list)
	app := fiber.New()
	app.Post("/api/v1/push", handler.Receive)
	app.Get("/api/v1/notifications", handler.ListNotifications)
	return app
}

func TestReceiveQueuesPushTask(t *testing.T) {
	tasks := &stubEnqueuer{}
	app := newPushApp(tasks, &stubNotificationList{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/push", strings.NewReader(`{"userId":"42","name":"Ana","fcmToken":"tok","message":"yo"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	if len(tasks.tasks) != 1 || tasks.tasks[0].Type != services.TaskPushMessage {
		t.Fatalf("unexpected tasks %+v", tasks.tasks)
	}
	var payload map[string]string
	if err := json.Unmarshal(tasks.tasks[0].Payload, &payload); err != nil || payload["name"] != "Ana" {
		t.Fatalf("unexpected payload %s", tasks.tasks[0].Payload)
	}
	if tasks.opts[0].Queue != "notifications" {
		t.Fatalf("unexpected queue %+v", tasks.opts[0])
	}
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	tasks := &stubEnqueuer{}
	app := newPushApp(tasks, &stubNotificationList{})

	for _, body := range []string{`not json`, `{"name":"Ana"}`} {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/push", strings.NewReader(body)))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(tasks.tasks) != 0 {
		t.Fatal("malformed payload must not be queued")
	}
}

func TestReceiveReportsQueueOutage(t *testing.T) {
	app := newPushApp(&stubEnqueuer{err: errors.New("redis down")}, &stubNotificationList{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/push", strings.NewReader(`{"userId":"42","message":"yo"}`)))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestListNotificationsCapsLimit(t *testing.T) {
	list := &stubNotificationList{items: []models.Notification{{ID: "n-1"}}}
	app := newPushApp(&stubEnqueuer{}, list)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=5000", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if list.lastLimit != maxNotificationLimit {
		t.Fatalf("expected limit %d, got %d", maxNotificationLimit, list.lastLimit)
	}

	_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if list.lastLimit != defaultNotificationLimit {
		t.Fatalf("expected default limit, got %d", list.lastLimit)
	}
}
