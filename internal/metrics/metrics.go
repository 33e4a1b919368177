package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments for the capture loop. Construct one per
// process with a dedicated registry; components that record accept a
// possibly-nil *Metrics and skip recording when it is absent.
type Metrics struct {
	TurnsStarted     prometheus.Counter
	TurnsCompleted   prometheus.Counter
	TurnsFailed      prometheus.Counter
	FramesSent       prometheus.Counter
	BytesUploaded    prometheus.Counter
	UploadDuration   prometheus.Histogram
	PlaybacksStarted prometheus.Counter
	PlaybacksSkipped prometheus.Counter
	InboundMessages  prometheus.Counter
	CaptureActive    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_turns_started_total",
			Help: "Capture turns started, including auto-resumed ones",
		}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_turns_completed_total",
			Help: "Capture turns finalized with a pipeline reply",
		}),
		TurnsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_turns_failed_total",
			Help: "Capture turns abandoned due to device or transport failure",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_stream_frames_sent_total",
			Help: "Fixed-size PCM frames written to the streaming channel",
		}),
		BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_upload_bytes_total",
			Help: "WAV bytes uploaded to the chat endpoint",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_upload_duration_seconds",
			Help:    "Round-trip time of chat uploads",
			Buckets: prometheus.DefBuckets,
		}),
		PlaybacksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_playbacks_started_total",
			Help: "Replies handed to the playback engine",
		}),
		PlaybacksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_playbacks_skipped_total",
			Help: "Replies acknowledged without audible playback",
		}),
		InboundMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_stream_inbound_messages_total",
			Help: "Messages received on the streaming channel",
		}),
		CaptureActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceloop_capture_active",
			Help: "1 while a capture turn is in flight",
		}),
	}
}
