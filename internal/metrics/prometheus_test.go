package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/vad-segmenter/internal/dispatch"
	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// Compile-time checks that Metrics plugs into the pipeline
var (
	_ vad.Recorder      = (*Metrics)(nil)
	_ dispatch.Recorder = (*Metrics)(nil)
)

func TestRecordFrame(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFrame(true, time.Millisecond)
	m.RecordFrame(false, time.Millisecond)
	m.RecordFrame(true, time.Millisecond)

	if got := testutil.ToFloat64(m.FramesProcessed); got != 3 {
		t.Errorf("Expected 3 frames, got %f", got)
	}
	if got := testutil.ToFloat64(m.SpeechFrames); got != 2 {
		t.Errorf("Expected 2 speech frames, got %f", got)
	}
}

func TestRecordDispatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDispatch("transcription", true, 10*time.Millisecond)
	m.RecordDispatch("transcription", false, 10*time.Millisecond)
	m.RecordDispatch("wav", true, time.Millisecond)

	tests := []struct {
		consumer string
		result   string
		expected float64
	}{
		{"transcription", "success", 1},
		{"transcription", "failure", 1},
		{"wav", "success", 1},
		{"wav", "failure", 0},
	}

	for _, tt := range tests {
		t.Run(tt.consumer+"_"+tt.result, func(t *testing.T) {
			got := testutil.ToFloat64(m.Deliveries.WithLabelValues(tt.consumer, tt.result))
			if got != tt.expected {
				t.Errorf("Expected %f, got %f", tt.expected, got)
			}
		})
	}

	m.SetInFlight(3)
	if got := testutil.ToFloat64(m.DeliveryInFlight); got != 3 {
		t.Errorf("Expected 3 in flight, got %f", got)
	}
}

func TestRecordUtteranceAndStreams(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordUtterance(1.5, 48000)
	m.RecordStreamCreated()
	m.SetActiveStreams(1)
	m.RecordPacketsLost(4)
	m.WSConnected(1)
	m.WSConnected(-1)

	if got := testutil.ToFloat64(m.UtterancesEmitted); got != 1 {
		t.Errorf("Expected 1 utterance, got %f", got)
	}
	if got := testutil.ToFloat64(m.PacketsLost); got != 4 {
		t.Errorf("Expected 4 lost packets, got %f", got)
	}
	if got := testutil.ToFloat64(m.WSConnections); got != 0 {
		t.Errorf("Expected no open connections, got %f", got)
	}

	if n := testutil.CollectAndCount(m.UtteranceDuration); n != 1 {
		t.Errorf("Expected one utterance duration series, got %d", n)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	// Two instances on separate registries must not panic on duplicate registration
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RecordParseError()
	if got := testutil.ToFloat64(b.ParseErrors); got != 0 {
		t.Errorf("Expected independent counters, got %f", got)
	}
}
