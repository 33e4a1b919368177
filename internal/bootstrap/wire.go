package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"voiceloop/internal/audio"
	"voiceloop/internal/config"
	"voiceloop/internal/metrics"
	"voiceloop/internal/playback"
	"voiceloop/internal/ports"
	"voiceloop/internal/session"
	"voiceloop/internal/transport"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *session.Controller
	Debug      *metrics.Server
	Config     config.Config
}

// Build wires the capture loop for the given configuration. The status
// sink is injected by the caller so the same graph serves both the CLI
// and tests.
func Build(cfg config.Config, statusSink ports.StatusSink) (Services, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	client := transport.NewClient(cfg.ServerURL, cfg.Timing.RequestTimeout(), m)

	sampleRate := cfg.Audio.BatchSampleRate
	var channels ports.ChannelFactory
	switch cfg.Mode {
	case config.ModeStream:
		sampleRate = cfg.Audio.StreamSampleRate
		channels = transport.NewStreamFactory(transport.StreamConfig{
			ServerURL:  cfg.ServerURL,
			Path:       cfg.StreamPath,
			SampleRate: sampleRate,
			Channels:   cfg.Audio.Channels,
			FrameSize:  cfg.Audio.ChunkSamples,
		}, m)
	case config.ModeBatch:
		channels = transport.NewBatchFactory(client, sampleRate, cfg.Audio.Channels)
	default:
		return Services{}, fmt.Errorf("unsupported mode %q", cfg.Mode)
	}

	var player ports.Player
	if cfg.Playback.Enabled {
		player = playback.NewSpeaker()
	} else {
		player = playback.NewNop()
	}

	controller := session.New(
		audio.NewFFmpegCapture(cfg.Audio.FFmpegCommand),
		channels,
		player,
		client,
		statusSink,
		m,
		session.Config{
			Device: ports.DeviceConfig{
				SampleRate:       sampleRate,
				Channels:         cfg.Audio.Channels,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				EchoCancellation: cfg.Audio.EchoCancellation,
			},
			ChunkSamples:    cfg.Audio.ChunkSamples,
			ResumeDelay:     cfg.Timing.ResumeDelay(),
			EndGrace:        cfg.Timing.EndGrace(),
			CaptureTimeout:  cfg.Timing.CaptureTimeout(),
			FinalizeTimeout: cfg.Timing.FinalizeTimeout(),
			SessionID:       cfg.Session,
		},
	)

	services := Services{Controller: controller, Config: cfg}
	if cfg.Metrics.Listen != "" {
		services.Debug = metrics.NewServer(cfg.Metrics.Listen, controller.Status, registry)
	}
	return services, nil
}
