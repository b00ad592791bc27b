// SPDX-License-Identifier: MIT
/*
Package queue feeds the analysis controller from an asynq task queue.

A task of type TaskAnalyzeFile carries the path (local or s3://) of one WAV
file. The handler loads it, submits it and waits for the job to finish, so a
worker with concurrency 1 never races the controller's single-job admission.
A busy or not-ready controller makes the task fail with a retryable error;
undecodable input and failed jobs skip retries.
*/
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"trackscan/internal/audio"
	"trackscan/internal/config"
	"trackscan/internal/job"
	applog "trackscan/internal/log"
)

// TaskAnalyzeFile is the asynq task type handled by this package.
const TaskAnalyzeFile = "analysis:file"

// busyRetryDelay is the retry delay after ErrBusy or ErrNotReady.
const busyRetryDelay = 2 * time.Second

var log = applog.New("queue")

// Payload is the JSON body of an analysis:file task.
type Payload struct {
	Path string `json:"path"`
}

// NewAnalyzeTask builds a task for path.
func NewAnalyzeTask(path string) (*asynq.Task, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	data, err := json.Marshal(Payload{Path: path})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyzeFile, data), nil
}

// Submitter is the controller as seen by the queue handler.
type Submitter interface {
	Submit(ctx context.Context, sig *audio.Signal) (*job.Ticket, error)
}

// LoadFunc decodes the audio at path.
type LoadFunc func(ctx context.Context, path string) (*audio.Signal, error)

// Handler processes analysis:file tasks.
type Handler struct {
	submitter Submitter
	load      LoadFunc
}

// NewHandler returns a handler submitting to s and loading with load.
func NewHandler(s Submitter, load LoadFunc) *Handler {
	return &Handler{submitter: s, load: load}
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Path == "" {
		return fmt.Errorf("task has no path: %w", asynq.SkipRetry)
	}

	sig, err := h.load(ctx, p.Path)
	if err != nil {
		if errors.Is(err, audio.ErrInvalidAudio) {
			return fmt.Errorf("%s: %v: %w", p.Path, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load %s: %w", p.Path, err)
	}

	ticket, err := h.submitter.Submit(ctx, sig)
	if err != nil {
		return fmt.Errorf("submit %s: %w", p.Path, err)
	}
	log.Infof("job %s started for %s", ticket.ID(), p.Path)

	agg, err := ticket.Wait(ctx)
	if err != nil {
		if agg == nil {
			// ctx ended first; the job keeps running in the controller.
			return err
		}
		return fmt.Errorf("job %s for %s failed: %v: %w", ticket.ID(), p.Path, err, asynq.SkipRetry)
	}
	log.Infof("job %s for %s complete: %d predictions", ticket.ID(), p.Path, len(agg.Predictions))
	return nil
}

// RetryDelay retries admission failures quickly and everything else with
// asynq's exponential backoff.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if errors.Is(err, job.ErrBusy) || errors.Is(err, job.ErrNotReady) {
		return busyRetryDelay
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

// logLevel maps the application log level onto asynq's.
func logLevel(level applog.LogLevel) asynq.LogLevel {
	switch level {
	case applog.LevelDebug:
		return asynq.DebugLevel
	case applog.LevelWarn:
		return asynq.WarnLevel
	case applog.LevelError:
		return asynq.ErrorLevel
	case applog.LevelFatal:
		return asynq.FatalLevel
	}
	return asynq.InfoLevel
}

// asynqLogger routes asynq's logs through internal/log.
type asynqLogger struct{ l *applog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debugf("%s", fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Infof("%s", fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warnf("%s", fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Errorf("%s", fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { applog.Fatalf("%s", fmt.Sprint(args...)) }

func redisOpt(cfg config.QueueConfig, password string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: password}
}

// Run consumes tasks until ctx is cancelled.
func Run(ctx context.Context, cfg config.QueueConfig, redisPassword string, h *Handler) error {
	srv := asynq.NewServer(redisOpt(cfg, redisPassword), asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{cfg.Queue: 1},
		RetryDelayFunc: RetryDelay,
		Logger:         asynqLogger{applog.New("asynq")},
		LogLevel:       logLevel(applog.GetLevel()),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskAnalyzeFile, h)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start queue worker: %w", err)
	}
	log.Infof("consuming %q from %s (concurrency %d)", cfg.Queue, cfg.RedisAddr, cfg.Concurrency)
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// Enqueue adds one analysis:file task for path.
func Enqueue(ctx context.Context, cfg config.QueueConfig, redisPassword, path string) (*asynq.TaskInfo, error) {
	task, err := NewAnalyzeTask(path)
	if err != nil {
		return nil, err
	}
	client := asynq.NewClient(redisOpt(cfg, redisPassword))
	defer client.Close()
	return client.EnqueueContext(ctx, task,
		asynq.Queue(cfg.Queue),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
}
