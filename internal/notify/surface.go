package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

// LiveNotifier shows a posted notification on the sockets currently open.
type LiveNotifier interface {
	BroadcastNotification(notification models.Notification)
}

// RedisSurface is the device notification surface. Channels and posted
// notifications are kept in Redis so they outlive a restart of the agent.
type RedisSurface struct {
	client   *redis.Client
	deviceID string
	history  int
	live     LiveNotifier
}

func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis: url is not set")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func NewRedisSurface(client *redis.Client, deviceID string, history int, live LiveNotifier) *RedisSurface {
	if history <= 0 {
		history = 100
	}
	return &RedisSurface{client: client, deviceID: deviceID, history: history, live: live}
}

func (s *RedisSurface) channelsKey() string {
	return "notify:" + s.deviceID + ":channels"
}

func (s *RedisSurface) postedKey() string {
	return "notify:" + s.deviceID + ":posted"
}

// EnsureChannel creates the channel if it does not exist yet. An existing
// channel keeps its original settings.
func (s *RedisSurface) EnsureChannel(ctx context.Context, channel models.NotificationChannel) (bool, error) {
	encoded, err := json.Marshal(channel)
	if err != nil {
		return false, fmt.Errorf("marshal notification channel: %w", err)
	}
	created, err := s.client.HSetNX(ctx, s.channelsKey(), channel.ID, encoded).Result()
	if err != nil {
		return false, fmt.Errorf("create notification channel %q: %w", channel.ID, err)
	}
	return created, nil
}

func (s *RedisSurface) Channel(ctx context.Context, id string) (*models.NotificationChannel, error) {
	raw, err := s.client.HGet(ctx, s.channelsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notification channel %q: %w", id, err)
	}
	var channel models.NotificationChannel
	if err := json.Unmarshal([]byte(raw), &channel); err != nil {
		return nil, fmt.Errorf("decode notification channel %q: %w", id, err)
	}
	return &channel, nil
}

func (s *RedisSurface) Post(ctx context.Context, notification models.Notification) error {
	encoded, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.postedKey(), encoded)
	pipe.LTrim(ctx, s.postedKey(), 0, int64(s.history-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("post notification %s: %w", notification.ID, err)
	}

	if s.live != nil {
		s.live.BroadcastNotification(notification)
	}
	return nil
}

// List returns posted notifications, newest first.
func (s *RedisSurface) List(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > s.history {
		limit = s.history
	}
	raw, err := s.client.LRange(ctx, s.postedKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var notification models.Notification
		if err := json.Unmarshal([]byte(item), &notification); err != nil {
			continue
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}
