package queue

import (
	"context"
	"time"
)

// Task is a background job: a stable type name plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the backend to retry, so
// handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption zero values mean "unspecified".
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	MaxRetry  int
	Retention time.Duration
	Deadline  time.Time
}

type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server blocks in Run until ctx is cancelled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
