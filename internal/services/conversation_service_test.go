package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/repository"
)

type stubConversationStore struct {
	upserts []repository.UpsertConversationInput
	byRole  map[models.Role][]models.ConversationRecord
}

func (s *stubConversationStore) Upsert(_ context.Context, input repository.UpsertConversationInput) (*models.ConversationRecord, error) {
	s.upserts = append(s.upserts, input)
	message := input.LastMessage
	sentAt := input.SentAt
	return &models.ConversationRecord{
		ID:          "c-1",
		SenderID:    input.SenderID,
		ReceiverID:  input.ReceiverID,
		LastMessage: &message,
		Timestamp:   &sentAt,
	}, nil
}

func (s *stubConversationStore) ListByParticipant(_ context.Context, role models.Role, _ string) ([]models.ConversationRecord, error) {
	return s.byRole[role], nil
}

type stubUsers map[string]*models.User

func (s stubUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type stubPusher struct {
	tokens []string
	data   map[string]string
	err    error
}

func (p *stubPusher) Send(_ context.Context, tokens []string, data map[string]string) error {
	p.tokens = tokens
	p.data = data
	return p.err
}

func testUsers() stubUsers {
	anaToken := "ana-token"
	bobToken := "bob-token"
	return stubUsers{
		"ana": {ID: "ana", Name: "Ana", Image: "img-ana", FCMToken: &anaToken},
		"bob": {ID: "bob", Name: "Bob", Image: "img-bob", FCMToken: &bobToken},
		"cyd": {ID: "cyd", Name: "Cyd"},
	}
}

func TestSendMessageStoresAndPushes(t *testing.T) {
	store := &stubConversationStore{}
	pusher := &stubPusher{}
	service := NewConversationService(store, testUsers(), pusher, zerolog.Nop())
	service.now = func() time.Time { return time.Unix(100, 0) }

	record, err := service.SendMessage(context.Background(), "ana", "bob", "  hello  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if *record.LastMessage != "hello" {
		t.Fatalf("expected trimmed message, got %q", *record.LastMessage)
	}

	input := store.upserts[0]
	if input.SenderName != "Ana" || input.ReceiverImage != "img-bob" || !input.SentAt.Equal(time.Unix(100, 0)) {
		t.Fatalf("unexpected upsert input: %+v", input)
	}

	if len(pusher.tokens) != 1 || pusher.tokens[0] != "bob-token" {
		t.Fatalf("unexpected push recipients: %v", pusher.tokens)
	}
	want := map[string]string{"userId": "ana", "name": "Ana", "fcmToken": "ana-token", "message": "hello"}
	for key, value := range want {
		if pusher.data[key] != value {
			t.Fatalf("push payload %s = %q, want %q", key, pusher.data[key], value)
		}
	}
}

func TestSendMessageSkipsPushWithoutCounterpartToken(t *testing.T) {
	pusher := &stubPusher{}
	service := NewConversationService(&stubConversationStore{}, testUsers(), pusher, zerolog.Nop())

	if _, err := service.SendMessage(context.Background(), "ana", "cyd", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if pusher.tokens != nil {
		t.Fatal("expected no push for counterpart without token")
	}
}

func TestSendMessageIgnoresPushFailure(t *testing.T) {
	pusher := &stubPusher{err: errors.New("relay down")}
	service := NewConversationService(&stubConversationStore{}, testUsers(), pusher, zerolog.Nop())

	if _, err := service.SendMessage(context.Background(), "ana", "bob", "hi"); err != nil {
		t.Fatalf("push failure must not fail the send: %v", err)
	}
}

func TestSendMessageValidatesInput(t *testing.T) {
	service := NewConversationService(&stubConversationStore{}, testUsers(), nil, zerolog.Nop())

	cases := []struct {
		actor, counterpart, content string
		want                        error
	}{
		{"", "bob", "hi", ErrNotSignedIn},
		{"ana", "", "hi", ErrInvalidInput},
		{"ana", "ana", "hi", ErrInvalidInput},
		{"ana", "bob", "   ", ErrInvalidInput},
		{"ana", "zed", "hi", ErrUserNotFound},
	}
	for _, tc := range cases {
		if _, err := service.SendMessage(context.Background(), tc.actor, tc.counterpart, tc.content); !errors.Is(err, tc.want) {
			t.Fatalf("SendMessage(%q,%q,%q) = %v, want %v", tc.actor, tc.counterpart, tc.content, err, tc.want)
		}
	}
}

func TestSnapshotMergesBothRoles(t *testing.T) {
	store := &stubConversationStore{byRole: map[models.Role][]models.ConversationRecord{
		models.RoleSender:   {record("me", "bob", "old", at(1))},
		models.RoleReceiver: {record("ana", "me", "new", at(9)), record("cyd", "me", "none", nil)},
	}}
	service := NewConversationService(store, testUsers(), nil, zerolog.Nop())

	list, err := service.Snapshot(context.Background(), "me")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(list) != 3 || list[0].CounterpartID != "ana" || list[2].CounterpartID != "cyd" {
		t.Fatalf("unexpected snapshot: %+v", list)
	}
}
