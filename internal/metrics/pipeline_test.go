package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInputMetricsCache(t *testing.T) {
	Reset()

	if m := GetInputMetrics("surface"); m != nil {
		t.Error("expected nil for unknown input")
	}

	IncRegistrations("surface")
	IncRegistrations("bitmap")
	IncFramesQueued("surface")
	IncFramesQueued("surface")
	IncGateSuppressed("surface", "output_frame_available")
	SetActiveInput("surface", []string{"surface", "bitmap"})

	m := GetInputMetrics("surface")
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FramesQueued != 2 {
		t.Errorf("FramesQueued = %d, want 2", m.FramesQueued)
	}
	if m.EventsSuppressed != 1 {
		t.Errorf("EventsSuppressed = %d, want 1", m.EventsSuppressed)
	}
	if !m.Active || m.Switches != 1 {
		t.Errorf("Active = %v, Switches = %d, want true, 1", m.Active, m.Switches)
	}

	SetActiveInput("bitmap", []string{"surface", "bitmap"})
	if GetInputMetrics("surface").Active {
		t.Error("surface should be inactive after switching to bitmap")
	}
	if !GetInputMetrics("bitmap").Active {
		t.Error("bitmap should be active")
	}

	// Returned values are copies.
	m.FramesQueued = 999
	if GetInputMetrics("surface").FramesQueued != 2 {
		t.Error("cache was modified through returned copy")
	}
}

func TestOutputFrames(t *testing.T) {
	Reset()
	IncOutputFrames()
	IncOutputFrames()
	if got := GetOutputFrames(); got != 2 {
		t.Errorf("GetOutputFrames() = %d, want 2", got)
	}
}

func TestHandlerServesPipelineMetrics(t *testing.T) {
	IncFramesQueued("texture_id")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "videofx_input_frames_queued_total") {
		t.Error("expected videofx_input_frames_queued_total in output")
	}
}
