package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/repository"
)

type conversationStore interface {
	Upsert(ctx context.Context, input repository.UpsertConversationInput) (*models.ConversationRecord, error)
	ListByParticipant(ctx context.Context, role models.Role, userID string) ([]models.ConversationRecord, error)
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type pushSender interface {
	Send(ctx context.Context, tokens []string, data map[string]string) error
}

type ConversationService struct {
	conversations conversationStore
	users         userReader
	pusher        pushSender
	log           zerolog.Logger
	now           func() time.Time
}

// NewConversationService builds the service. pusher may be nil, in which
// case messages are stored without a push to the counterpart.
func NewConversationService(
	conversations conversationStore,
	users userReader,
	pusher pushSender,
	log zerolog.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		users:         users,
		pusher:        pusher,
		log:           log.With().Str("component", "conversation_service").Logger(),
		now:           time.Now,
	}
}

// SendMessage moves the pair's last message and pushes it to the
// counterpart's device. A failed push is logged only.
func (s *ConversationService) SendMessage(
	ctx context.Context,
	actorID string,
	counterpartID string,
	content string,
) (*models.ConversationRecord, error) {
	trimmed := strings.TrimSpace(content)
	if actorID == "" {
		return nil, ErrNotSignedIn
	}
	if counterpartID == "" || counterpartID == actorID || trimmed == "" {
		return nil, ErrInvalidInput
	}

	sender, err := s.lookupUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.lookupUser(ctx, counterpartID)
	if err != nil {
		return nil, err
	}

	record, err := s.conversations.Upsert(ctx, repository.UpsertConversationInput{
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		SenderImage:   sender.Image,
		ReceiverID:    receiver.ID,
		ReceiverName:  receiver.Name,
		ReceiverImage: receiver.Image,
		LastMessage:   trimmed,
		SentAt:        s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store conversation: %w", err)
	}

	s.push(ctx, sender, receiver, trimmed)
	return record, nil
}

func (s *ConversationService) push(ctx context.Context, sender, receiver *models.User, message string) {
	if s.pusher == nil || receiver.FCMToken == nil || *receiver.FCMToken == "" {
		return
	}

	req := models.NotificationRequest{
		UserID:  sender.ID,
		Name:    sender.Name,
		Message: message,
	}
	if sender.FCMToken != nil {
		req.Token = *sender.FCMToken
	}

	if err := s.pusher.Send(ctx, []string{*receiver.FCMToken}, req.Data()); err != nil {
		s.log.Warn().Err(err).Str("receiver_id", receiver.ID).Msg("push to counterpart failed")
	}
}

// Snapshot merges both roles once, without a live subscription.
func (s *ConversationService) Snapshot(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}

	var events []models.ChangeEvent
	for _, role := range []models.Role{models.RoleSender, models.RoleReceiver} {
		records, err := s.conversations.ListByParticipant(ctx, role, userID)
		if err != nil {
			return nil, fmt.Errorf("list %s conversations: %w", role, err)
		}
		for _, record := range records {
			events = append(events, models.ChangeEvent{Kind: models.ChangeAdded, Record: record})
		}
	}

	engine := NewMergeEngine(WithMergeLogger(s.log))
	return engine.ApplyBatch(events, userID), nil
}

func (s *ConversationService) lookupUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
