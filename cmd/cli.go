package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trackscan/internal/config"
	applog "trackscan/internal/log"
	"trackscan/pkg/build"
)

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath  string
	LogLevel    string
	Classifiers []string

	// Config is loaded before any command runs.
	Config *config.Config
}

// Execute parses args and runs the selected command until it returns or
// ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand(&Options{})
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree around opts.
func NewRootCommand(opts *Options) *cobra.Command {
	buildInfo := build.Get()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Mood, danceability and key/tempo analysis for audio tracks",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"Path to a YAML config file. Defaults to ./trackscan.yaml or ./config.yaml when present")
	rootCmd.PersistentFlags().StringVarP(&opts.LogLevel, "log-level", "l", "",
		"Log level (debug, info, warn, error). Overrides the config file")
	rootCmd.PersistentFlags().StringSliceVar(&opts.Classifiers, "classifiers", nil,
		"Comma-separated classifier roster. Overrides the config file")

	rootCmd.AddCommand(
		newAnalyzeCommand(opts),
		newPitchCommand(opts),
		newRecordCommand(opts),
		newServeCommand(opts),
		newWorkerCommand(opts),
		newEnqueueCommand(opts),
		newClassifiersCommand(opts),
		newDevicesCommand(),
		newTokenCommand(opts),
	)
	return rootCmd
}

// load reads the config file and applies flag overrides on top of it.
func (o *Options) load() error {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if len(o.Classifiers) > 0 {
		cfg.Classifiers.Enabled = o.Classifiers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	applog.SetLevel(level)
	o.Config = cfg
	return nil
}

func newAnalyzeCommand(opts *Options) *cobra.Command {
	var (
		asJSON   bool
		progress bool
		timeout  time.Duration
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav|s3://bucket/key>...",
		Short: "Analyze one or more WAV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("timeout") {
				opts.Config.Job.Timeout = timeout
			}
			return runAnalyze(cmd, opts.Config, args, asJSON, progress)
		},
	}
	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "Print each result as JSON instead of a summary card")
	analyzeCmd.Flags().BoolVarP(&progress, "progress", "p", false, "Show a progress bar per job")
	analyzeCmd.Flags().DurationVarP(&timeout, "timeout", "t", config.DefaultJobTimeout,
		"Per-job deadline; 0 waits indefinitely")
	return analyzeCmd
}

func newPitchCommand(opts *Options) *cobra.Command {
	var (
		asJSON bool
		chunk  int
	)
	pitchCmd := &cobra.Command{
		Use:   "pitch <file.wav|s3://bucket/key>",
		Short: "Estimate the fundamental frequency of each chunk of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("chunk") {
				chunk = opts.Config.Analysis.PitchChunk
			}
			return runPitch(cmd, opts.Config, args[0], chunk, asJSON)
		},
	}
	pitchCmd.Flags().IntVar(&chunk, "chunk", config.DefaultPitchChunk, "Samples per chunk")
	pitchCmd.Flags().BoolVar(&asJSON, "json", false, "Print the trace as JSON")
	return pitchCmd
}

func newRecordCommand(opts *Options) *cobra.Command {
	var (
		pick     bool
		upload   string
		device   int
		duration time.Duration
		rate     float64
	)
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record from an input device and analyze the capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			capture := &opts.Config.Capture
			if cmd.Flags().Changed("device") {
				capture.InputDevice = device
			}
			if cmd.Flags().Changed("duration") {
				capture.Duration = duration
			}
			if cmd.Flags().Changed("sample-rate") {
				capture.SampleRate = rate
			}
			return runRecord(cmd, opts.Config, pick, upload)
		},
	}
	recordCmd.Flags().BoolVar(&pick, "pick", false, "Choose device, rate and duration interactively")
	recordCmd.Flags().StringVar(&upload, "upload", "", "Also upload the capture to this s3:// URL")
	recordCmd.Flags().IntVarP(&device, "device", "d", config.DefaultCaptureDevice,
		"Input device ID. Use the 'devices' command to see available devices")
	recordCmd.Flags().DurationVar(&duration, "duration", config.DefaultCaptureDuration, "Capture length")
	recordCmd.Flags().Float64VarP(&rate, "sample-rate", "s", config.DefaultCaptureRate,
		"Capture sample rate, measured in Hertz (Hz)")
	return recordCmd
}

func newServeCommand(opts *Options) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.Config.Server.Addr = addr
			}
			return runServe(cmd, opts.Config)
		},
	}
	serveCmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultServerAddr, "Listen address")
	return serveCmd
}

func newWorkerCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume analysis tasks from the Redis queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, opts.Config)
		},
	}
}

func newEnqueueCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <file.wav|s3://bucket/key>...",
		Short: "Queue files for a worker to analyze",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, opts.Config, args)
		},
	}
}

func newClassifiersCommand(opts *Options) *cobra.Command {
	var check bool
	classifiersCmd := &cobra.Command{
		Use:   "classifiers",
		Short: "List classifiers, optionally starting the pool to check them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassifiers(cmd, opts.Config, check)
		},
	}
	classifiersCmd.Flags().BoolVar(&check, "check", false, "Start every enabled classifier and report its state")
	return classifiersCmd
}

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd)
		},
	}
}

func newTokenCommand(opts *Options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, opts.Config, subject, ttl)
		},
	}
	tokenCmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime; 0 never expires")
	return tokenCmd
}
