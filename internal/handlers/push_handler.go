package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
	"github.com/saeid-a/SigmaChatSync/internal/services"
)

const (
	pushMaxRetry  = 5
	pushRetention = time.Hour
)

type taskEnqueuer interface {
	Enqueue(ctx context.Context, t queue.Task, opts ...queue.EnqueueOption) (string, error)
}

type notificationLister interface {
	List(ctx context.Context, limit int) ([]models.Notification, error)
}

type PushHandler struct {
	tasks         taskEnqueuer
	queueName     string
	notifications notificationLister
}

func NewPushHandler(tasks taskEnqueuer, queueName string, notifications notificationLister) *PushHandler {
	return &PushHandler{
		tasks:         tasks,
		queueName:     queueName,
		notifications: notifications,
	}
}

// Receive accepts a flat push payload from the relay and hands it to the
// notification worker.
func (h *PushHandler) Receive(c *fiber.Ctx) error {
	var payload map[string]string
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid push payload"})
	}

	task, err := services.NewPushTask(payload)
	if err != nil {
		if errors.Is(err, services.ErrMalformedPush) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Push payload needs userId and message"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to accept push"})
	}

	id, err := h.tasks.Enqueue(c.Context(), task, queue.EnqueueOption{
		Queue:     h.queueName,
		MaxRetry:  pushMaxRetry,
		Retention: pushRetention,
	})
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Failed to queue push"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": id})
}

func (h *PushHandler) ListNotifications(c *fiber.Ctx) error {
	limit := parsePositiveInt(c.Query("limit"), defaultNotificationLimit)
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := h.notifications.List(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load notifications"})
	}

	return c.JSON(fiber.Map{"notifications": notifications})
}
