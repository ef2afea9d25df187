package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/internal/tasks"
)

// Server runs the background task handlers.
type Server struct {
	server   *asynq.Server
	expiry   *ExpiryHandler
	playlist *PlaylistHandler
	log      *logrus.Entry
}

func NewServer(redisOpt asynq.RedisClientOpt, expiry *ExpiryHandler, playlist *PlaylistHandler) *Server {
	log := logrus.WithField("component", "worker")
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).WithError(err).Error("Task failed")
			}),
		},
	)
	return &Server{server: server, expiry: expiry, playlist: playlist, log: log}
}

// Start begins processing tasks in the background.
func (s *Server) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRoomExpire, s.expiry.ProcessTask)
	mux.HandleFunc(tasks.TypePlaylistSend, s.playlist.ProcessTask)

	s.log.Info("Worker server starting")
	if err := s.server.Start(mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for running tasks to finish.
func (s *Server) Shutdown() {
	s.server.Shutdown()
	s.log.Info("Worker server stopped")
}
