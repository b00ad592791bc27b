package config

import "time"

// Defaults for every tunable of the analysis pipeline. LoadConfig starts from
// these and lets the YAML file and the environment override them.
const (
	DefaultLogLevel = "info"

	// Analysis front-end
	DefaultSampleRate = 16000  // Rate every signal is resampled to before analysis
	DefaultTrimKeep   = 0.15   // Share of the original length kept for the classifiers
	DefaultTrimMargin = 0.10   // Share discarded at each end before sampling the interior
	DefaultPatchSize  = 187 * 256
	DefaultPitchChunk = 2048   // Samples per pitch-kernel chunk
	DefaultFrameSize  = 1024   // FFT frame for features and tonal estimation
	DefaultHopSize    = 512
	DefaultWindow     = "Hann"

	// Classifier pool
	DefaultPoolInitTimeout = 10 * time.Second
	DefaultModelsDir       = ""

	// Job lifecycle
	DefaultJobTimeout = 30 * time.Second // 0 disables the timeout

	// Capture
	DefaultCaptureDevice   = -1 // System default input
	DefaultCaptureRate     = 44100
	DefaultCaptureChannels = 1
	DefaultFramesPerBuffer = 1024
	DefaultCaptureDuration = 30 * time.Second
	DefaultSilenceTh       = 0.01

	// Sinks and services
	DefaultWebSocketAddr = ":8081"
	DefaultUDPTarget     = "127.0.0.1:9090"
	DefaultUDPInterval   = time.Second
	DefaultMQTTBroker    = "tcp://localhost:1883"
	DefaultMQTTTopic     = "trackscan/results"
	DefaultRedisAddr     = "localhost:6379"
	DefaultResultTTL     = 24 * time.Hour
	DefaultServerAddr    = ":8080"
	DefaultBodyLimitMB   = 64
	DefaultQueueName     = "analysis"

	// Limits
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// DefaultClassifiers is the full classifier roster in dispatch order.
var DefaultClassifiers = []string{
	"mood_happy",
	"mood_sad",
	"mood_relaxed",
	"mood_aggressive",
	"mood_party",
	"mood_electronic",
	"mood_acoustic",
	"danceability",
	"tonal_atonal",
}
