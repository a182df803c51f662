package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

// ConversationChangesChannel is the NOTIFY channel fed by the
// conversations_notify trigger.
const ConversationChangesChannel = "conversation_changes"

// DefaultMaxListeners caps hijacked LISTEN connections when no limit is set.
const DefaultMaxListeners = 64

// ErrListenerLimit is returned by Subscribe when every listener slot is taken.
var ErrListenerLimit = errors.New("too many live conversation subscriptions")

type changeNotification struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// ConversationFeed turns NOTIFY traffic on the conversations table into
// per-role live query subscriptions.
//
// Each subscription hijacks its connection out of the pool, so the pool's
// MaxConns no longer counts it. slots bounds those connections instead.
type ConversationFeed struct {
	pool  *pgxpool.Pool
	repo  *ConversationRepository
	slots chan struct{}
	log   zerolog.Logger
}

func NewConversationFeed(pool *pgxpool.Pool, maxListeners int, log zerolog.Logger) *ConversationFeed {
	if maxListeners <= 0 {
		maxListeners = DefaultMaxListeners
	}
	return &ConversationFeed{
		pool:  pool,
		repo:  NewConversationRepository(pool),
		slots: make(chan struct{}, maxListeners),
		log:   log.With().Str("component", "conversation_feed").Logger(),
	}
}

func (f *ConversationFeed) acquireSlot() bool {
	select {
	case f.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (f *ConversationFeed) releaseSlot() {
	<-f.slots
}

// Listeners reports how many LISTEN connections are open.
func (f *ConversationFeed) Listeners() int {
	return len(f.slots)
}

// Subscribe starts a live query on conversations where the given role column
// equals userID. The first batch holds every matching record as Added. The
// channel is closed when ctx is cancelled or after a batch carrying Err; the
// dedicated connection is closed with it.
func (f *ConversationFeed) Subscribe(
	ctx context.Context,
	role models.Role,
	userID string,
) (<-chan models.ChangeBatch, error) {
	if _, err := roleColumn(role); err != nil {
		return nil, err
	}
	if !f.acquireSlot() {
		f.log.Warn().Int("limit", cap(f.slots)).Str("user_id", userID).Msg("listener limit reached")
		return nil, ErrListenerLimit
	}

	pooled, err := f.pool.Acquire(ctx)
	if err != nil {
		f.releaseSlot()
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+ConversationChangesChannel); err != nil {
		f.closeListener(conn)
		return nil, fmt.Errorf("listen %s: %w", ConversationChangesChannel, err)
	}

	initial, err := f.repo.ListByParticipant(ctx, role, userID)
	if err != nil {
		f.closeListener(conn)
		return nil, fmt.Errorf("load initial %s conversations: %w", role, err)
	}

	out := make(chan models.ChangeBatch, 16)
	go f.pump(ctx, conn, role, userID, initial, out)
	return out, nil
}

func (f *ConversationFeed) pump(
	ctx context.Context,
	conn *pgx.Conn,
	role models.Role,
	userID string,
	initial []models.ConversationRecord,
	out chan<- models.ChangeBatch,
) {
	defer close(out)
	defer f.closeListener(conn)

	log := f.log.With().Str("role", string(role)).Str("user_id", userID).Logger()

	events := make([]models.ChangeEvent, 0, len(initial))
	for _, record := range initial {
		events = append(events, models.ChangeEvent{Kind: models.ChangeAdded, Record: record})
	}
	if !send(ctx, out, models.ChangeBatch{Role: role, Events: events}) {
		return
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug().Msg("subscription cancelled")
				return
			}
			send(ctx, out, models.ChangeBatch{Role: role, Err: fmt.Errorf("wait for notification: %w", err)})
			return
		}

		var change changeNotification
		if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
			log.Warn().Err(err).Str("payload", notification.Payload).Msg("skipping undecodable change notification")
			continue
		}

		kind, ok := changeKind(change.Op)
		if !ok {
			continue
		}

		record, err := f.repo.GetForParticipant(ctx, change.ID, role, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			send(ctx, out, models.ChangeBatch{Role: role, Err: fmt.Errorf("load conversation %s: %w", change.ID, err)})
			return
		}

		batch := models.ChangeBatch{
			Role:   role,
			Events: []models.ChangeEvent{{Kind: kind, Record: *record}},
		}
		if !send(ctx, out, batch) {
			return
		}
	}
}

func (f *ConversationFeed) closeListener(conn *pgx.Conn) {
	_ = conn.Close(context.Background())
	f.releaseSlot()
}

func changeKind(op string) (models.ChangeKind, bool) {
	switch op {
	case "INSERT":
		return models.ChangeAdded, true
	case "UPDATE":
		return models.ChangeModified, true
	default:
		return "", false
	}
}

func send(ctx context.Context, out chan<- models.ChangeBatch, batch models.ChangeBatch) bool {
	select {
	case out <- batch:
		return true
	case <-ctx.Done():
		return false
	}
}
