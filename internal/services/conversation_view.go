package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"golang.org/x/sync/errgroup"
)

type Subscriber interface {
	Subscribe(ctx context.Context, role models.Role, userID string) (<-chan models.ChangeBatch, error)
}

// ViewSink is the renderer side of a view. It only ever receives copies.
type ViewSink interface {
	RenderConversations(userID string, conversations []models.ConversationSummary, scrollToTop bool)
	Warn(userID string, message string)
}

// ConversationView binds one merge engine and its two subscriptions to a
// single view lifetime.
type ConversationView struct {
	userID string
	feed   Subscriber
	sink   ViewSink
	engine *MergeEngine
	log    zerolog.Logger
}

func NewConversationView(
	userID string,
	feed Subscriber,
	sink ViewSink,
	log zerolog.Logger,
	opts ...MergeOption,
) *ConversationView {
	log = log.With().Str("component", "conversation_view").Str("user_id", userID).Logger()
	opts = append([]MergeOption{WithMergeLogger(log)}, opts...)
	return &ConversationView{
		userID: userID,
		feed:   feed,
		sink:   sink,
		engine: NewMergeEngine(opts...),
		log:    log,
	}
}

func (v *ConversationView) Snapshot() []models.ConversationSummary {
	return v.engine.Snapshot()
}

// Run subscribes as sender and as receiver and feeds every batch through one
// consumer until ctx is cancelled or both subscriptions have ended. A failed
// subscription is reported once and leaves the other one running.
func (v *ConversationView) Run(ctx context.Context) error {
	merged := make(chan models.ChangeBatch)

	g, gctx := errgroup.WithContext(ctx)
	for _, role := range []models.Role{models.RoleSender, models.RoleReceiver} {
		g.Go(func() error {
			v.forward(gctx, role, merged)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(merged)
	}()

	warned := make(map[models.Role]bool, 2)
	for batch := range merged {
		if batch.Err != nil {
			v.log.Warn().Err(batch.Err).Str("role", string(batch.Role)).Msg("conversation subscription failed")
			if !warned[batch.Role] {
				warned[batch.Role] = true
				v.sink.Warn(v.userID, WarnConversationsUnavailable)
			}
			continue
		}

		snapshot := v.engine.ApplyBatch(batch.Events, v.userID)
		v.sink.RenderConversations(v.userID, snapshot, true)
	}

	return ctx.Err()
}

func (v *ConversationView) forward(ctx context.Context, role models.Role, merged chan<- models.ChangeBatch) {
	batches, err := v.feed.Subscribe(ctx, role, v.userID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		select {
		case merged <- models.ChangeBatch{Role: role, Err: err}:
		case <-ctx.Done():
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			batch.Role = role
			select {
			case merged <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}
