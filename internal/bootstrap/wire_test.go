package bootstrap

import (
	"testing"

	"voiceloop/internal/config"
	"voiceloop/internal/domain"
)

type noopStatusSink struct{}

func (noopStatusSink) StateChanged(_ domain.CaptureState, _ domain.StateReason) {}
func (noopStatusSink) TurnCompleted(_ domain.TurnResult)                        {}
func (noopStatusSink) SessionError(_ domain.ErrorCode, _ string)                {}
func (noopStatusSink) Note(_ domain.StatusLevel, _ string)                      {}

func testBuildConfig(mode string) config.Config {
	return config.Config{
		ServerURL:  "http://127.0.0.1:8000",
		Mode:       mode,
		StreamPath: "/ws",
		Audio: config.AudioConfig{
			BatchSampleRate:  44100,
			StreamSampleRate: 16000,
			Channels:         1,
			ChunkSamples:     4096,
		},
	}
}

func TestBuildBatchMode(t *testing.T) {
	t.Parallel()

	services, err := Build(testBuildConfig(config.ModeBatch), noopStatusSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil {
		t.Fatalf("expected controller")
	}
	if services.Debug != nil {
		t.Fatalf("debug server should be nil when metrics are disabled")
	}
	if services.Config.Mode != config.ModeBatch {
		t.Fatalf("config not carried through: %+v", services.Config)
	}
}

func TestBuildStreamMode(t *testing.T) {
	t.Parallel()

	services, err := Build(testBuildConfig(config.ModeStream), noopStatusSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil {
		t.Fatalf("expected controller")
	}
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := Build(testBuildConfig("banana"), noopStatusSink{}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestBuildEnablesDebugServer(t *testing.T) {
	t.Parallel()

	cfg := testBuildConfig(config.ModeBatch)
	cfg.Metrics.Listen = "127.0.0.1:0"

	services, err := Build(cfg, noopStatusSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Debug == nil {
		t.Fatalf("expected debug server when metrics listen address is set")
	}
}
