package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/docstore"
	"account_gateway/platform/config"
	"account_gateway/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	records repository.RecordRepository
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, records repository.RecordRepository, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(records, log)
	w.server = server
	return w, nil
}

func newWorker(records repository.RecordRepository, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	w := &Worker{
		mux:     asynq.NewServeMux(),
		records: records,
		log:     log,
	}
	w.mux.HandleFunc(TaskUserRecordDelete, w.handleUserRecordDelete)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleUserRecordDelete(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseUserRecordDeletePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("%w: empty user id", asynq.SkipRetry)
	}

	err = w.records.DeleteUser(ctx, payload.UserID)
	if errors.Is(err, docstore.ErrInvalidPath) {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		w.log.WithUserID(payload.UserID).StoreError("delete user record", repository.UsersCollection, err)
		return err
	}

	w.log.Info("user record cleaned up", slog.String("userId", payload.UserID))
	return nil
}
