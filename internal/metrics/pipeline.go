// Package metrics provides Prometheus metrics for the frame pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "input",
		Name:      "frames_queued_total",
		Help:      "Frames handed from a frame source to its sampling program",
	}, []string{"input_type"})

	gateDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "switcher",
		Name:      "gate_suppressed_total",
		Help:      "Listener events suppressed by an inactive input gate",
	}, []string{"input_type", "event"})

	inputSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "switcher",
		Name:      "switches_total",
		Help:      "Switches to an input type",
	}, []string{"input_type"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "switcher",
		Name:      "registrations_total",
		Help:      "Input registrations, including replacements",
	}, []string{"input_type"})

	activeInput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "videofx",
		Subsystem: "switcher",
		Name:      "active_input",
		Help:      "1 for the currently active input type, 0 otherwise",
	}, []string{"input_type"})

	outputFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "output",
		Name:      "frames_total",
		Help:      "Frames delivered by the final program",
	})

	processingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videofx",
		Subsystem: "processor",
		Name:      "errors_total",
		Help:      "Asynchronous processing errors by code",
	}, []string{"code"})

	// Local cache for the status API.
	inputCache   = make(map[string]*InputMetrics)
	outputCount  uint64
	inputCacheMu sync.RWMutex
)

// InputMetrics holds current counter values for one input type.
type InputMetrics struct {
	FramesQueued     uint64
	EventsSuppressed uint64
	Switches         uint64
	Registrations    uint64
	Active           bool
}

// IncFramesQueued counts a frame queued into the sampler of inputType.
func IncFramesQueued(inputType string) {
	framesQueued.WithLabelValues(inputType).Inc()
	updateCache(inputType, func(m *InputMetrics) { m.FramesQueued++ })
}

// IncGateSuppressed counts a listener event dropped by the gate of inputType.
func IncGateSuppressed(inputType, event string) {
	gateDropped.WithLabelValues(inputType, event).Inc()
	updateCache(inputType, func(m *InputMetrics) { m.EventsSuppressed++ })
}

// IncRegistrations counts a registration of inputType.
func IncRegistrations(inputType string) {
	registrations.WithLabelValues(inputType).Inc()
	updateCache(inputType, func(m *InputMetrics) { m.Registrations++ })
}

// SetActiveInput records a switch to active among the registered input types.
func SetActiveInput(active string, registered []string) {
	inputSwitches.WithLabelValues(active).Inc()
	for _, t := range registered {
		isActive := t == active
		value := 0.0
		if isActive {
			value = 1
		}
		activeInput.WithLabelValues(t).Set(value)
		updateCache(t, func(m *InputMetrics) {
			m.Active = isActive
			if isActive {
				m.Switches++
			}
		})
	}
}

// IncOutputFrames counts a frame delivered by the pipeline.
func IncOutputFrames() {
	outputFrames.Inc()
	inputCacheMu.Lock()
	outputCount++
	inputCacheMu.Unlock()
}

// IncProcessingErrors counts an asynchronous processing error.
func IncProcessingErrors(code string) {
	processingErrors.WithLabelValues(code).Inc()
}

// GetInputMetrics returns current values for an input type.
func GetInputMetrics(inputType string) *InputMetrics {
	inputCacheMu.RLock()
	defer inputCacheMu.RUnlock()
	if m, ok := inputCache[inputType]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetOutputFrames returns the number of frames delivered since start.
func GetOutputFrames() uint64 {
	inputCacheMu.RLock()
	defer inputCacheMu.RUnlock()
	return outputCount
}

// Reset clears the local cache. Prometheus counters are not reset.
func Reset() {
	inputCacheMu.Lock()
	defer inputCacheMu.Unlock()
	inputCache = make(map[string]*InputMetrics)
	outputCount = 0
}

func updateCache(inputType string, update func(*InputMetrics)) {
	inputCacheMu.Lock()
	defer inputCacheMu.Unlock()
	m, ok := inputCache[inputType]
	if !ok {
		m = &InputMetrics{}
		inputCache[inputType] = m
	}
	update(m)
}
