// SPDX-License-Identifier: MIT
/*
Package app assembles the analysis pipeline from configuration:
- Classifier pool with one worker per enabled classifier
- Job controller with preprocessing, features and tonal estimation
- Result sinks enabled in the sinks section of the config

Commands build one Pipeline each and close it on exit.
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"trackscan/internal/analysis"
	"trackscan/internal/audio"
	"trackscan/internal/classifier"
	"trackscan/internal/config"
	"trackscan/internal/feature"
	"trackscan/internal/job"
	applog "trackscan/internal/log"
	"trackscan/internal/pool"
	"trackscan/internal/storage"
	"trackscan/internal/transport"
	"trackscan/internal/transport/udp"
)

var log = applog.New("app")

// Options adjusts which local sinks a command attaches.
type Options struct {
	Out       io.Writer  // Console and progress output; nil disables both.
	Progress  bool       // Adds a progress bar even when the config does not.
	NoConsole bool       // Suppresses the result card, e.g. for JSON output.
	Extra     []job.Sink // Appended after the configured sinks.

	// Factory replaces the configured classifier back-ends. Tests use it
	// to avoid model files and subprocesses.
	Factory classifier.Factory
}

// Pipeline is a running controller with its pool and sinks.
type Pipeline struct {
	Pool       *pool.Pool
	Controller *job.Controller
	Sinks      transport.Fanout
	Results    *transport.ResultStore // nil unless the redis sink is enabled.
	Objects    *storage.Client        // nil unless object storage is configured.
	Roster     []classifier.ID
}

// New starts the classifier pool and wires the controller from cfg.
// The pool must have at least one ready classifier once
// cfg.Classifiers.InitTimeout has passed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	roster, err := classifier.ParseIDs(cfg.Classifiers.Enabled)
	if err != nil {
		return nil, err
	}
	window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Roster: roster}
	if storageConfigured(cfg.Storage) {
		if p.Objects, err = storage.NewClient(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	if err := p.buildSinks(ctx, cfg, opts); err != nil {
		p.Sinks.Close()
		return nil, err
	}

	factory := opts.Factory
	if factory == nil {
		factory = classifier.NewFactory(classifier.Options{
			ModelsDir: cfg.Classifiers.ModelsDir,
			Exec:      cfg.Classifiers.Exec,
		})
	}
	p.Pool = pool.New(factory)
	initCtx, cancel := context.WithTimeout(ctx, cfg.Classifiers.InitTimeout)
	err = p.Pool.Initialize(initCtx, roster)
	cancel()
	if err != nil {
		p.Pool.Close()
		p.Sinks.Close()
		return nil, err
	}

	tonal := analysis.NewTonalEstimator()
	tonal.Window = window
	extractor := &analysis.FeatureExtractor{
		FrameSize: cfg.Analysis.FrameSize,
		HopSize:   cfg.Analysis.HopSize,
		Window:    window,
	}

	p.Controller = job.NewController(p.Pool, job.Options{
		Preprocessor: audio.Preprocessor{TargetRate: cfg.Analysis.SampleRate},
		SampleRate:   cfg.Analysis.SampleRate,
		Trim: audio.TrimPolicy{
			Keep:      cfg.Analysis.Trim.Keep,
			Margin:    cfg.Analysis.Trim.Margin,
			PatchSize: cfg.Analysis.Trim.PatchSize,
		},
		Tonal:    tonal,
		Features: feature.NewAdapter(extractor, analysis.FeatureNames()),
		Timeout:  cfg.Job.Timeout,
		Sink:     p.Sinks,
	})
	return p, nil
}

// Load decodes a local WAV file or an s3:// object.
func (p *Pipeline) Load(ctx context.Context, path string) (*audio.Signal, error) {
	return storage.Loader{Objects: p.Objects}.Load(ctx, path)
}

// Analyze loads path, runs one job and waits for it.
func (p *Pipeline) Analyze(ctx context.Context, path string) (*job.Aggregate, error) {
	sig, err := p.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, sig)
}

// Run submits sig and waits for the job to finish.
func (p *Pipeline) Run(ctx context.Context, sig *audio.Signal) (*job.Aggregate, error) {
	t, err := p.Controller.Submit(ctx, sig)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// Close stops the controller, the pool and every sink, in that order.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Controller != nil {
		errs = append(errs, p.Controller.Close())
	}
	if p.Pool != nil {
		errs = append(errs, p.Pool.Close())
	}
	errs = append(errs, p.Sinks.Close())
	return errors.Join(errs...)
}

func storageConfigured(cfg config.StorageConfig) bool {
	return cfg.Endpoint != "" || cfg.Region != ""
}

// buildSinks appends the configured sinks to p.Sinks. On error the sinks
// built so far are left in p.Sinks for the caller to close.
func (p *Pipeline) buildSinks(ctx context.Context, cfg *config.Config, opts Options) error {
	sc := cfg.Sinks
	p.Sinks = transport.Fanout{transport.NewLoggingSink()}

	if sc.Redis.Enabled {
		client, err := transport.NewRedisClient(ctx, sc.Redis)
		if err != nil {
			return err
		}
		p.Results = transport.NewResultStore(client, sc.Redis.TTL)
		p.Sinks = append(p.Sinks, transport.NewRedisSink(p.Results, p.Roster), closerSink{c: client})
	}

	if sc.WebSocket.Enabled {
		ws := transport.NewWebSocketTransport(sc.WebSocket.Addr)
		if err := ws.Start(); err != nil {
			ws.Close()
			return fmt.Errorf("failed to start websocket sink: %w", err)
		}
		log.Infof("websocket sink listening on %s", ws.Addr())
		p.Sinks = append(p.Sinks, transport.NewEventSink("websocket", ws))
	}

	if sc.MQTT.Enabled {
		mt, err := transport.NewMQTTTransport(sc.MQTT)
		if err != nil {
			return err
		}
		p.Sinks = append(p.Sinks, transport.NewEventSink("mqtt", mt))
	}

	if sc.UDP.Enabled {
		sender, err := udp.NewSender(sc.UDP.Target)
		if err != nil {
			return err
		}
		pub, err := udp.NewPublisher(sc.UDP.Interval, sender)
		if err != nil {
			sender.Close()
			return err
		}
		pub.Start()
		p.Sinks = append(p.Sinks, pub)
	}

	if opts.Out != nil {
		if opts.Progress || sc.Progress {
			p.Sinks = append(p.Sinks, transport.NewProgressSink(opts.Out))
		}
		if sc.Console && !opts.NoConsole {
			p.Sinks = append(p.Sinks, transport.NewConsoleSink(opts.Out))
		}
	}
	p.Sinks = append(p.Sinks, opts.Extra...)
	return nil
}

// closerSink ties a shared client's lifetime to the sink fanout.
type closerSink struct {
	job.NopSink
	c io.Closer
}

func (s closerSink) Close() error { return s.c.Close() }
