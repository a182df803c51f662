package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ErrSkipRetry wrapped into a handler error stops further attempts.
var ErrSkipRetry = asynq.SkipRetry

// AsynqClient implements Client on top of Redis through asynq.
type AsynqClient struct {
	client *asynq.Client
}

func NewAsynqClient(redisURL string) (*AsynqClient, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &AsynqClient{client: asynq.NewClient(opt)}, nil
}

var _ Client = (*AsynqClient)(nil)

func (a *AsynqClient) Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("asynq: task type is required")
	}

	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), asynqOptions(opts)...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (a *AsynqClient) Close() error {
	return a.client.Close()
}

// Only the first option is honoured; callers pass one consolidated option.
func asynqOptions(opts []EnqueueOption) []asynq.Option {
	if len(opts) == 0 {
		return nil
	}
	op := opts[0]

	var out []asynq.Option
	if op.ProcessIn > 0 {
		out = append(out, asynq.ProcessIn(op.ProcessIn))
	}
	if op.Queue != "" {
		out = append(out, asynq.Queue(op.Queue))
	}
	if op.MaxRetry > 0 {
		out = append(out, asynq.MaxRetry(op.MaxRetry))
	}
	if op.Retention > 0 {
		out = append(out, asynq.Retention(op.Retention))
	}
	if !op.Deadline.IsZero() {
		out = append(out, asynq.Deadline(op.Deadline))
	}
	return out
}

// AsynqServer implements Server with an asynq worker pool.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewAsynqServer(redisURL string, queueName string, concurrency int, log zerolog.Logger) (*AsynqServer, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	queues := map[string]int{"default": 1}
	if queueName != "" {
		queues[queueName] = 3
	}

	log = log.With().Str("component", "queue_worker").Logger()
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task_type", task.Type()).Msg("task failed")
		}),
		Logger: asynqLogger{log: log},
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux()}, nil
}

var _ Server = (*AsynqServer)(nil)

func (s *AsynqServer) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

func redisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is not set")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return opt, nil
}

// asynqLogger routes asynq's internal logging into zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
