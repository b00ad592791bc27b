// SPDX-License-Identifier: MIT
/*
Package server exposes the analysis controller over HTTP:
- POST /api/analyze accepts a WAV upload and starts a job
- GET /api/status reports controller and classifier state
- GET /api/jobs/:id returns a stored or the most recent result
- POST /api/pitch returns the pitch trace of a WAV upload
- GET /api/health is always unauthenticated

Every other /api route requires a bearer token when a JWT secret is set.
*/
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"trackscan/internal/audio"
	"trackscan/internal/job"
	applog "trackscan/internal/log"
	"trackscan/internal/pool"
	"trackscan/internal/transport"
)

var log = applog.New("server")

// Analyzer is the job controller as seen by the API.
type Analyzer interface {
	Submit(ctx context.Context, sig *audio.Signal) (*job.Ticket, error)
	State() job.State
	ActiveJob() string
	Last() *job.Aggregate
}

// PoolReporter reports per-classifier worker state.
type PoolReporter interface {
	Ready() bool
	Report() []pool.Status
}

// ResultLoader looks up finished jobs.
type ResultLoader interface {
	Load(ctx context.Context, jobID string) (*transport.StoredResult, error)
}

// Options configures a Server.
type Options struct {
	BodyLimitMB int
	JWTSecret   string // Empty disables bearer auth.
	PitchChunk  int
	Results     ResultLoader // Optional.
	AccessLog   bool
}

// Server is the fiber application plus its collaborators.
type Server struct {
	app      *fiber.App
	analyzer Analyzer
	pool     PoolReporter
	opts     Options
}

// New builds the application and registers all routes.
func New(a Analyzer, p PoolReporter, opts Options) *Server {
	if opts.BodyLimitMB <= 0 {
		opts.BodyLimitMB = 64
	}
	s := &Server{analyzer: a, pool: p, opts: opts}
	s.app = fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		BodyLimit:             opts.BodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	if opts.AccessLog {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	s.app.Get("/api/health", s.health)

	api := s.app.Group("/api", NewAuth(opts.JWTSecret).Authenticate())
	api.Post("/analyze", s.analyze)
	api.Get("/status", s.status)
	api.Get("/jobs/:id", s.jobResult)
	api.Post("/pitch", s.pitch)
	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP API listening on %s", addr)
		errCh <- s.app.Listen(addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return err
		}
		return <-errCh
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeBusy         = "BUSY"
	CodeNotReady     = "NOT_READY"
	CodeService      = "SERVICE_ERROR"
)

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	}
	return respondError(c, status, CodeService, message)
}
