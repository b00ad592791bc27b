package server

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"trackscan/internal/audio"
	"trackscan/internal/job"
	"trackscan/internal/pitch"
	"trackscan/internal/pool"
	"trackscan/internal/transport"
	"trackscan/pkg/build"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State       string         `json:"state"`
	ActiveJob   string         `json:"activeJob,omitempty"`
	PoolReady   bool           `json:"poolReady"`
	Classifiers []pool.Status  `json:"classifiers"`
	Last        *job.Aggregate `json:"last,omitempty"`
}

// SubmitResponse is the body of a 202 from POST /api/analyze.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": build.Get().Version})
}

// upload decodes the multipart "file" field as WAV.
func upload(c *fiber.Ctx) (*audio.Signal, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, respondError(c, fiber.StatusBadRequest, CodeValidation, "Missing file field")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	sig, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, respondError(c, fiber.StatusBadRequest, CodeValidation, err.Error())
	}
	return sig, nil
}

func (s *Server) analyze(c *fiber.Ctx) error {
	sig, err := upload(c)
	if sig == nil {
		return err
	}

	ticket, err := s.analyzer.Submit(c.UserContext(), sig)
	switch {
	case errors.Is(err, job.ErrBusy):
		return respondError(c, fiber.StatusConflict, CodeBusy, err.Error())
	case errors.Is(err, job.ErrNotReady):
		return respondError(c, fiber.StatusServiceUnavailable, CodeNotReady, err.Error())
	case err != nil:
		return err
	}
	log.Infof("accepted job %s (%.1fs of audio)", ticket.ID(), sig.Duration().Seconds())
	return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{JobID: ticket.ID()})
}

func (s *Server) status(c *fiber.Ctx) error {
	resp := StatusResponse{
		State:     s.analyzer.State().String(),
		ActiveJob: s.analyzer.ActiveJob(),
		Last:      s.analyzer.Last(),
	}
	if s.pool != nil {
		resp.PoolReady = s.pool.Ready()
		resp.Classifiers = s.pool.Report()
	}
	return c.JSON(resp)
}

func (s *Server) jobResult(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.opts.Results != nil {
		r, err := s.opts.Results.Load(c.UserContext(), id)
		if err == nil {
			return c.JSON(r)
		}
		if !errors.Is(err, transport.ErrJobNotFound) {
			return err
		}
	}
	if last := s.analyzer.Last(); last != nil && last.JobID == id {
		state := transport.StateComplete
		if !last.Success {
			state = transport.StateFailed
		}
		return c.JSON(transport.StoredResult{State: state, Aggregate: *last})
	}
	if id == s.analyzer.ActiveJob() {
		return c.JSON(transport.StoredResult{State: transport.StateRunning, Aggregate: job.Aggregate{JobID: id}})
	}
	return respondError(c, fiber.StatusNotFound, CodeNotFound, "Job not found")
}

func (s *Server) pitch(c *fiber.Ctx) error {
	chunk := s.opts.PitchChunk
	if q := c.Query("chunk"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 16 {
			return respondError(c, fiber.StatusBadRequest, CodeValidation, "chunk must be an integer >= 16")
		}
		chunk = n
	}

	sig, err := upload(c)
	if sig == nil {
		return err
	}
	mono := audio.Downmix(sig.Samples, sig.Channels)
	tr, err := pitch.Analyze(c.UserContext(), mono, sig.SampleRate, chunk)
	if err != nil {
		return err
	}
	return c.JSON(tr)
}
