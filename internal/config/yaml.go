// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trackscan/pkg/bitint"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TRACKSCAN_LOG_LEVEL.
const EnvPrefix = "TRACKSCAN_"

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel    string           `yaml:"log_level" validate:"required"`
	Analysis    AnalysisConfig   `yaml:"analysis"`
	Classifiers ClassifierConfig `yaml:"classifiers"`
	Job         JobConfig        `yaml:"job"`
	Capture     CaptureConfig    `yaml:"capture"`
	Sinks       SinkConfig       `yaml:"sinks"`
	Server      ServerConfig     `yaml:"server"`
	Queue       QueueConfig      `yaml:"queue"`
	Storage     StorageConfig    `yaml:"storage"`
}

// AnalysisConfig holds the preprocessing and signal-analysis settings.
type AnalysisConfig struct {
	SampleRate float64    `yaml:"sample_rate" validate:"gte=8000,lte=192000"` // Target rate after resampling.
	Trim       TrimConfig `yaml:"trim"`
	PitchChunk int        `yaml:"pitch_chunk" validate:"gte=16"`  // Samples per pitch chunk.
	FrameSize  int        `yaml:"frame_size" validate:"gte=64"`   // FFT frame size (power of two).
	HopSize    int        `yaml:"hop_size" validate:"gt=0"`       // Frame advance in samples.
	Window     string     `yaml:"window" validate:"required"`     // FFT window name (Hann, Hamming, ...).
}

// TrimConfig controls which part of the signal is handed to the classifiers.
type TrimConfig struct {
	Keep      float64 `yaml:"keep" validate:"gt=0,lte=1"`      // Share of the original length kept.
	Margin    float64 `yaml:"margin" validate:"gte=0,lt=0.5"`  // Share dropped at each end.
	PatchSize int     `yaml:"patch_size" validate:"gte=0"`     // Contiguous patch length; 0 keeps one block.
}

// ClassifierConfig selects and configures the classifier pool.
type ClassifierConfig struct {
	Enabled     []string            `yaml:"enabled" validate:"min=1,dive,required"`
	ModelsDir   string              `yaml:"models_dir"`   // Directory of <id>.yaml weight files.
	Exec        map[string][]string `yaml:"exec"`         // Classifier ID -> external scorer command line.
	InitTimeout time.Duration       `yaml:"init_timeout" validate:"gt=0"`
}

// JobConfig holds per-job limits.
type JobConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"` // 0 disables the deadline.
}

// CaptureConfig holds settings for the record command.
type CaptureConfig struct {
	InputDevice     int           `yaml:"input_device" validate:"gte=-1"`
	SampleRate      float64       `yaml:"sample_rate" validate:"gte=8000,lte=192000"`
	Channels        int           `yaml:"channels" validate:"gte=1,lte=2"`
	FramesPerBuffer int           `yaml:"frames_per_buffer" validate:"gt=0"`
	Duration        time.Duration `yaml:"duration" validate:"gt=0"`
	OutputDir       string        `yaml:"output_dir"` // Keep a WAV copy of each capture when set.
	SilenceTh       float64       `yaml:"silence_threshold" validate:"gte=0,lt=1"`
}

// SinkConfig selects where job results are published.
type SinkConfig struct {
	Console   bool            `yaml:"console"`
	Progress  bool            `yaml:"progress"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	UDP       UDPConfig       `yaml:"udp"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

type UDPConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Target   string        `yaml:"target" validate:"omitempty,hostname_port"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"` // Resend period for the latest snapshot; 0 sends on change only.
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic" validate:"required_if=Enabled true"`
	QoS      byte   `yaml:"qos" validate:"lte=2"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr        string `yaml:"addr" validate:"required"`
	JWTSecret   string `yaml:"jwt_secret"` // Empty disables bearer auth.
	BodyLimitMB int    `yaml:"body_limit_mb" validate:"gt=0"`
}

// QueueConfig holds the asynq consumer settings.
type QueueConfig struct {
	RedisAddr   string `yaml:"redis_addr" validate:"required"`
	Queue       string `yaml:"queue" validate:"required"`
	Concurrency int    `yaml:"concurrency" validate:"gte=1"`
}

// StorageConfig holds S3-compatible object store settings.
type StorageConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // Custom endpoint (R2, MinIO); empty uses AWS.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Analysis: AnalysisConfig{
			SampleRate: DefaultSampleRate,
			Trim: TrimConfig{
				Keep:      DefaultTrimKeep,
				Margin:    DefaultTrimMargin,
				PatchSize: DefaultPatchSize,
			},
			PitchChunk: DefaultPitchChunk,
			FrameSize:  DefaultFrameSize,
			HopSize:    DefaultHopSize,
			Window:     DefaultWindow,
		},
		Classifiers: ClassifierConfig{
			Enabled:     append([]string(nil), DefaultClassifiers...),
			ModelsDir:   DefaultModelsDir,
			InitTimeout: DefaultPoolInitTimeout,
		},
		Job: JobConfig{Timeout: DefaultJobTimeout},
		Capture: CaptureConfig{
			InputDevice:     DefaultCaptureDevice,
			SampleRate:      DefaultCaptureRate,
			Channels:        DefaultCaptureChannels,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Duration:        DefaultCaptureDuration,
			SilenceTh:       DefaultSilenceTh,
		},
		Sinks: SinkConfig{
			Console:   true,
			WebSocket: WebSocketConfig{Addr: DefaultWebSocketAddr},
			UDP:       UDPConfig{Target: DefaultUDPTarget, Interval: DefaultUDPInterval},
			MQTT:      MQTTConfig{Broker: DefaultMQTTBroker, ClientID: "trackscan", Topic: DefaultMQTTTopic},
			Redis:     RedisConfig{Addr: DefaultRedisAddr, TTL: DefaultResultTTL},
		},
		Server: ServerConfig{Addr: DefaultServerAddr, BodyLimitMB: DefaultBodyLimitMB},
		Queue:  QueueConfig{RedisAddr: DefaultRedisAddr, Queue: DefaultQueueName, Concurrency: 1},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("trackscan.yaml", "config.yaml"). If no file is found,
// it uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"trackscan.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the cross-field trim rule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	t := c.Analysis.Trim
	if t.Keep > 1-2*t.Margin {
		return fmt.Errorf("analysis.trim.keep %.2f exceeds the interior left by margin %.2f", t.Keep, t.Margin)
	}
	if !bitint.IsPowerOfTwo(c.Analysis.FrameSize) {
		return fmt.Errorf("analysis.frame_size %d is not a power of two", c.Analysis.FrameSize)
	}
	return nil
}

// applyEnvOverrides reads TRACKSCAN_* variables. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := lookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := lookupEnv("SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Analysis.SampleRate = f
		}
	}
	if val, ok := lookupEnv("CLASSIFIERS"); ok {
		var ids []string
		for _, id := range strings.Split(val, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.Classifiers.Enabled = ids
	}
	if val, ok := lookupEnv("MODELS_DIR"); ok {
		c.Classifiers.ModelsDir = val
	}
	if val, ok := lookupEnv("JOB_TIMEOUT"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Job.Timeout = d
		}
	}

	// Sinks
	if val, ok := lookupEnv("UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Sinks.UDP.Enabled = b
		}
	}
	if val, ok := lookupEnv("UDP_TARGET"); ok {
		c.Sinks.UDP.Target = val
	}
	if val, ok := lookupEnv("MQTT_BROKER"); ok {
		c.Sinks.MQTT.Broker = val
		c.Sinks.MQTT.Enabled = true
	}
	if val, ok := lookupEnv("REDIS_ADDR"); ok {
		c.Sinks.Redis.Addr = val
		c.Queue.RedisAddr = val
	}
	if val, ok := lookupEnv("REDIS_PASSWORD"); ok {
		c.Sinks.Redis.Password = val
	}

	// Services
	if val, ok := lookupEnv("SERVER_ADDR"); ok {
		c.Server.Addr = val
	}
	if val, ok := lookupEnv("JWT_SECRET"); ok {
		c.Server.JWTSecret = val
	}
	if val, ok := lookupEnv("S3_ENDPOINT"); ok {
		c.Storage.Endpoint = val
	}
	if val, ok := lookupEnv("S3_ACCESS_KEY_ID"); ok {
		c.Storage.AccessKeyID = val
	}
	if val, ok := lookupEnv("S3_SECRET_ACCESS_KEY"); ok {
		c.Storage.SecretAccessKey = val
	}
}

func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}
