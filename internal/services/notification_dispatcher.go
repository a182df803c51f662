package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
)

const (
	TaskPushMessage = "push:message"

	ChatChannelID          = "chat_message"
	ChatChannelName        = "Chat Message"
	chatChannelDescription = "Incoming chat messages"

	chatRoute = "chat"
)

type notificationSurface interface {
	EnsureChannel(ctx context.Context, channel models.NotificationChannel) (bool, error)
	Post(ctx context.Context, notification models.Notification) error
}

// NotificationDispatcher turns inbound push payloads into posted
// notifications. It never touches conversation state.
type NotificationDispatcher struct {
	surface notificationSurface
	log     zerolog.Logger
	now     func() time.Time
}

func NewNotificationDispatcher(surface notificationSurface, log zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		surface: surface,
		log:     log.With().Str("component", "notification_dispatcher").Logger(),
		now:     time.Now,
	}
}

func (d *NotificationDispatcher) OnPush(ctx context.Context, req models.NotificationRequest) (*models.Notification, error) {
	if req.UserID == "" || req.Message == "" {
		return nil, ErrMalformedPush
	}

	channel := models.NotificationChannel{
		ID:          ChatChannelID,
		Name:        ChatChannelName,
		Description: chatChannelDescription,
		Importance:  models.ImportanceDefault,
	}
	if _, err := d.surface.EnsureChannel(ctx, channel); err != nil {
		return nil, err
	}

	// Each notification gets its own id, so pushes from one counterpart
	// stack instead of replacing each other.
	notification := models.Notification{
		ID:         uuid.NewString(),
		ChannelID:  ChatChannelID,
		Title:      req.Name,
		Body:       req.Message,
		BigText:    req.Message,
		Priority:   models.ImportanceDefault,
		AutoCancel: true,
		Tap: models.TapAction{
			Route:           chatRoute,
			CounterpartID:   req.UserID,
			CounterpartName: req.Name,
			CounterpartFCM:  req.Token,
			ClearTask:       true,
		},
		PostedAt: d.now().UTC(),
	}

	if err := d.surface.Post(ctx, notification); err != nil {
		return nil, err
	}

	d.log.Debug().
		Str("notification_id", notification.ID).
		Str("counterpart_id", req.UserID).
		Msg("notification posted")
	return &notification, nil
}

// HandlePushTask is the queue worker entry point. Malformed payloads are
// dropped without retry.
func (d *NotificationDispatcher) HandlePushTask(ctx context.Context, task queue.Task) error {
	var data map[string]string
	if err := json.Unmarshal(task.Payload, &data); err != nil {
		d.log.Warn().Err(err).Msg("dropping undecodable push payload")
		return fmt.Errorf("%w: %w", ErrMalformedPush, queue.ErrSkipRetry)
	}

	_, err := d.OnPush(ctx, models.NotificationRequestFromData(data))
	if errors.Is(err, ErrMalformedPush) {
		d.log.Warn().Msg("dropping push payload without userId or message")
		return fmt.Errorf("%w: %w", ErrMalformedPush, queue.ErrSkipRetry)
	}
	return err
}

// NewPushTask validates a flat push payload and wraps it as a queue task.
func NewPushTask(data map[string]string) (queue.Task, error) {
	req := models.NotificationRequestFromData(data)
	if req.UserID == "" || req.Message == "" {
		return queue.Task{}, ErrMalformedPush
	}

	payload, err := json.Marshal(req.Data())
	if err != nil {
		return queue.Task{}, err
	}
	return queue.Task{Type: TaskPushMessage, Payload: payload}, nil
}
