package services

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

type MergeOption func(*MergeEngine)

// WithDuplicateAdds makes Added append unconditionally, so the same pair seen
// by both subscriptions shows up twice. Modified then updates the first entry
// whose ordered sender and receiver match.
func WithDuplicateAdds() MergeOption {
	return func(e *MergeEngine) {
		e.duplicates = true
	}
}

func WithMergeLogger(log zerolog.Logger) MergeOption {
	return func(e *MergeEngine) {
		e.log = log
	}
}

// MergeEngine folds change events from the sender and receiver subscriptions
// into one list of conversation summaries, newest first.
type MergeEngine struct {
	mu         sync.Mutex
	list       []models.ConversationSummary
	index      map[models.PairKey]int
	duplicates bool
	log        zerolog.Logger
}

func NewMergeEngine(opts ...MergeOption) *MergeEngine {
	e := &MergeEngine{
		index: make(map[models.PairKey]int),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnChangeEvent applies a single event without re-sorting. It reports whether
// the list changed.
func (e *MergeEngine) OnChangeEvent(event models.ChangeEvent, currentUserID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(event, currentUserID)
}

// ApplyBatch applies every event of one delivery, sorts once and returns a
// snapshot for the renderer.
func (e *MergeEngine) ApplyBatch(events []models.ChangeEvent, currentUserID string) []models.ConversationSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, event := range events {
		e.apply(event, currentUserID)
	}
	e.sortLocked()
	return e.snapshotLocked()
}

func (e *MergeEngine) Snapshot() []models.ConversationSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *MergeEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.list)
}

func (e *MergeEngine) apply(event models.ChangeEvent, currentUserID string) bool {
	record := event.Record
	if record.SenderID == "" || record.ReceiverID == "" {
		e.log.Warn().
			Str("record_id", record.ID).
			Str("kind", string(event.Kind)).
			Msg("skipping conversation record without both participants")
		return false
	}

	switch event.Kind {
	case models.ChangeAdded:
		summary := summarize(record, currentUserID)
		key := summary.Pair()
		if pos, ok := e.index[key]; ok && !e.duplicates {
			e.list[pos] = summary
			return true
		}
		e.list = append(e.list, summary)
		if _, ok := e.index[key]; !ok {
			e.index[key] = len(e.list) - 1
		}
		return true

	case models.ChangeModified:
		pos, ok := e.findModified(record)
		if !ok {
			return false
		}
		e.list[pos].LastMessage = lastMessageOf(record)
		e.list[pos].LastMessageAt = copyTime(record.Timestamp)
		return true

	default:
		e.log.Debug().Str("kind", string(event.Kind)).Msg("ignoring unsupported change kind")
		return false
	}
}

func (e *MergeEngine) findModified(record models.ConversationRecord) (int, bool) {
	if !e.duplicates {
		pos, ok := e.index[models.NewPairKey(record.SenderID, record.ReceiverID)]
		return pos, ok
	}
	for i, summary := range e.list {
		if summary.SenderID == record.SenderID && summary.ReceiverID == record.ReceiverID {
			return i, true
		}
	}
	return 0, false
}

// sortLocked orders by LastMessageAt descending. Entries without a timestamp
// go last and keep their relative order.
func (e *MergeEngine) sortLocked() {
	sort.SliceStable(e.list, func(i, j int) bool {
		a, b := e.list[i].LastMessageAt, e.list[j].LastMessageAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	clear(e.index)
	for i, summary := range e.list {
		key := summary.Pair()
		if _, ok := e.index[key]; !ok {
			e.index[key] = i
		}
	}
}

func (e *MergeEngine) snapshotLocked() []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(e.list))
	for i, summary := range e.list {
		summary.LastMessageAt = copyTime(summary.LastMessageAt)
		out[i] = summary
	}
	return out
}

func summarize(record models.ConversationRecord, currentUserID string) models.ConversationSummary {
	summary := models.ConversationSummary{
		LastMessage:   lastMessageOf(record),
		LastMessageAt: copyTime(record.Timestamp),
		SenderID:      record.SenderID,
		ReceiverID:    record.ReceiverID,
	}
	if record.SenderID == currentUserID {
		summary.CounterpartID = record.ReceiverID
		summary.CounterpartName = record.ReceiverName
		summary.CounterpartImage = record.ReceiverImage
	} else {
		summary.CounterpartID = record.SenderID
		summary.CounterpartName = record.SenderName
		summary.CounterpartImage = record.SenderImage
	}
	return summary
}

func lastMessageOf(record models.ConversationRecord) string {
	if record.LastMessage == nil {
		return ""
	}
	return *record.LastMessage
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
