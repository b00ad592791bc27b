package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"trackscan/internal/app"
	"trackscan/internal/audio"
	"trackscan/internal/classifier"
	"trackscan/internal/config"
	applog "trackscan/internal/log"
	"trackscan/internal/pitch"
	"trackscan/internal/queue"
	"trackscan/internal/server"
	"trackscan/internal/storage"
	"trackscan/internal/tui"
)

var log = applog.New("cli")

func runAnalyze(cmd *cobra.Command, cfg *config.Config, paths []string, asJSON, progress bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Keep stdout clean for JSON; bars go to stderr instead.
	display := out
	if asJSON {
		display = cmd.ErrOrStderr()
	}
	p, err := app.New(ctx, cfg, app.Options{Out: display, Progress: progress, NoConsole: asJSON})
	if err != nil {
		return err
	}
	defer p.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	var errs []error
	for _, path := range paths {
		agg, err := p.Analyze(ctx, path)
		if agg != nil && asJSON {
			if err := enc.Encode(agg); err != nil {
				return err
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func runPitch(cmd *cobra.Command, cfg *config.Config, path string, chunk int, asJSON bool) error {
	ctx := cmd.Context()
	loader := storage.Loader{}
	if storage.IsObjectURL(path) {
		client, err := storage.NewClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		loader.Objects = client
	}

	sig, err := loader.Load(ctx, path)
	if err != nil {
		return err
	}
	if sig.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", audio.ErrInvalidAudio, sig.Channels)
	}
	trace, err := pitch.Analyze(ctx, audio.Downmix(sig.Samples, sig.Channels), sig.SampleRate, chunk)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	}
	fmt.Fprintf(out, "base frequency: %.2f Hz (%s), %d of %d chunks voiced\n",
		trace.Base, noteOrDash(trace.Base), trace.Voiced(), len(trace.Frequencies))
	for i, f := range trace.Frequencies {
		at := float64(i*chunk) / sig.SampleRate
		fmt.Fprintf(out, "%8.3fs  %8.2f Hz  %s\n", at, f, noteOrDash(f))
	}
	return nil
}

func noteOrDash(hz float64) string {
	if hz <= 0 {
		return "-"
	}
	return pitch.NoteName(hz)
}

func runRecord(cmd *cobra.Command, cfg *config.Config, pick bool, upload string) error {
	ctx := cmd.Context()
	if upload != "" && !storage.IsObjectURL(upload) {
		return fmt.Errorf("%w: %s", storage.ErrNotObjectURL, upload)
	}

	if pick {
		capture, ok, err := tui.PickCaptureSettings(cfg.Capture)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Capture = capture
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	rec, err := audio.NewRecorder(cfg.Capture)
	if err != nil {
		return err
	}

	// Start the pool first so classifiers are warm when the capture ends.
	p, err := app.New(ctx, cfg, app.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer p.Close()

	sig, err := rec.Record(ctx)
	if err != nil {
		return err
	}
	if upload != "" {
		if err := uploadSignal(ctx, cfg.Storage, upload, sig); err != nil {
			return err
		}
	}
	_, err = p.Run(ctx, sig)
	return err
}

// uploadSignal encodes sig as 16-bit WAV and stores it at url.
func uploadSignal(ctx context.Context, cfg config.StorageConfig, url string, sig *audio.Signal) error {
	client, err := storage.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "trackscan-*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := audio.WriteWAV(f, sig, 16); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return client.Upload(ctx, url, f, "audio/wav")
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	p, err := app.New(ctx, cfg, app.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer p.Close()

	opts := server.Options{
		BodyLimitMB: cfg.Server.BodyLimitMB,
		JWTSecret:   cfg.Server.JWTSecret,
		PitchChunk:  cfg.Analysis.PitchChunk,
		AccessLog:   applog.GetLevel() == applog.LevelDebug,
	}
	if p.Results != nil {
		opts.Results = p.Results
	}
	if opts.JWTSecret == "" {
		log.Warnf("jwt_secret is empty; the API accepts unauthenticated requests")
	}
	return server.New(p.Controller, p.Pool, opts).Listen(ctx, cfg.Server.Addr)
}

func runWorker(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	p, err := app.New(ctx, cfg, app.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer p.Close()

	return queue.Run(ctx, cfg.Queue, cfg.Sinks.Redis.Password, queue.NewHandler(p.Controller, p.Load))
}

func runEnqueue(cmd *cobra.Command, cfg *config.Config, paths []string) error {
	for _, path := range paths {
		info, err := queue.Enqueue(cmd.Context(), cfg.Queue, cfg.Sinks.Redis.Password, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s as task %s on %q\n", path, info.ID, info.Queue)
	}
	return nil
}

var tableHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var tableCell = lipgloss.NewStyle().Padding(0, 1)

func runClassifiers(cmd *cobra.Command, cfg *config.Config, check bool) error {
	out := cmd.OutOrStdout()
	enabled, err := classifier.ParseIDs(cfg.Classifiers.Enabled)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return tableCell
		})

	if !check {
		t.Headers("CLASSIFIER", "ENABLED")
		for _, id := range classifier.All() {
			mark := ""
			if slices.Contains(enabled, id) {
				mark = "yes"
			}
			t.Row(id.String(), mark)
		}
		fmt.Fprintln(out, t.Render())
		return nil
	}

	p, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	t.Headers("CLASSIFIER", "STATE", "ERROR")
	for _, s := range p.Pool.Report() {
		t.Row(s.Classifier, s.State, s.Error)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func runDevices(cmd *cobra.Command) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(cmd.OutOrStdout())
}

func runToken(cmd *cobra.Command, cfg *config.Config, subject string, ttl time.Duration) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is not set")
	}
	token, err := server.NewAuth(cfg.Server.JWTSecret).GenerateToken(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
