package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport mode selected at session configuration time.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

type Config struct {
	ServerURL  string `mapstructure:"server_url"`
	Mode       string `mapstructure:"mode"`
	StreamPath string `mapstructure:"stream_path"`
	Session    string `mapstructure:"session"`

	Audio    AudioConfig    `mapstructure:"audio"`
	Timing   TimingConfig   `mapstructure:"timing"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AudioConfig struct {
	FFmpegCommand    string `mapstructure:"ffmpeg_command"`
	InputFormat      string `mapstructure:"input_format"`
	InputDevice      string `mapstructure:"input_device"`
	BatchSampleRate  int    `mapstructure:"batch_sample_rate"`
	StreamSampleRate int    `mapstructure:"stream_sample_rate"`
	Channels         int    `mapstructure:"channels"`
	ChunkSamples     int    `mapstructure:"chunk_samples"`
	NoiseSuppression bool   `mapstructure:"noise_suppression"`
	EchoCancellation bool   `mapstructure:"echo_cancellation"`
}

type TimingConfig struct {
	ResumeDelayMs    int `mapstructure:"resume_delay_ms"`
	EndGraceMs       int `mapstructure:"end_grace_ms"`
	CaptureTimeoutS  int `mapstructure:"capture_timeout_s"`
	FinalizeTimeoutS int `mapstructure:"finalize_timeout_s"`
	RequestTimeoutS  int `mapstructure:"request_timeout_s"`
}

type PlaybackConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func (t TimingConfig) ResumeDelay() time.Duration {
	return time.Duration(t.ResumeDelayMs) * time.Millisecond
}

func (t TimingConfig) EndGrace() time.Duration {
	return time.Duration(t.EndGraceMs) * time.Millisecond
}

func (t TimingConfig) CaptureTimeout() time.Duration {
	return time.Duration(t.CaptureTimeoutS) * time.Second
}

func (t TimingConfig) FinalizeTimeout() time.Duration {
	return time.Duration(t.FinalizeTimeoutS) * time.Second
}

func (t TimingConfig) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutS) * time.Second
}

// Load resolves configuration from an optional yaml file, environment
// variables (VOICELOOP_ prefix), and defaults. cfgFile may be empty.
func Load(cfgFile string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("voiceloop")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VOICELOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://127.0.0.1:8000")
	v.SetDefault("mode", ModeBatch)
	v.SetDefault("stream_path", "/ws")
	v.SetDefault("session", "")

	v.SetDefault("audio.ffmpeg_command", "ffmpeg")
	v.SetDefault("audio.input_format", defaultInputFormat())
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.batch_sample_rate", 44100)
	v.SetDefault("audio.stream_sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.chunk_samples", 4096)
	v.SetDefault("audio.noise_suppression", false)
	v.SetDefault("audio.echo_cancellation", false)

	v.SetDefault("timing.resume_delay_ms", 800)
	v.SetDefault("timing.end_grace_ms", 1200)
	v.SetDefault("timing.capture_timeout_s", 90)
	v.SetDefault("timing.finalize_timeout_s", 4)
	v.SetDefault("timing.request_timeout_s", 60)

	v.SetDefault("playback.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.listen", "")
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.ServerURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server_url %q is not a valid absolute URL", c.ServerURL)
	}
	if c.Mode != ModeBatch && c.Mode != ModeStream {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeBatch, ModeStream, c.Mode)
	}
	if !strings.HasPrefix(c.StreamPath, "/") {
		return fmt.Errorf("stream_path %q must start with /", c.StreamPath)
	}
	if c.Audio.BatchSampleRate <= 0 || c.Audio.StreamSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("channels must be positive")
	}
	if c.Audio.ChunkSamples < 256 {
		return fmt.Errorf("chunk_samples must be at least 256")
	}
	if c.Timing.ResumeDelayMs < 0 || c.Timing.EndGraceMs < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	return nil
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "voiceloop")
}
