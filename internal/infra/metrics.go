package infra

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow counters exported on /metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ColorResolutions *prometheus.CounterVec
	ImageGenerations *prometheus.CounterVec
	ImageDuration    *prometheus.HistogramVec
	ImagesSaved      *prometheus.CounterVec
	BreedTransitions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		ColorResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breedstudio_color_resolutions_total",
			Help: "Color resolutions partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		ImageGenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breedstudio_image_generations_total",
			Help: "Image edit calls partitioned by kind (master, variant) and outcome.",
		}, []string{"kind", "outcome"}),
		ImageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breedstudio_image_generation_seconds",
			Help:    "Latency of image edit calls.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"kind"}),
		ImagesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breedstudio_images_saved_total",
			Help: "Generated images written to storage partitioned by outcome.",
		}, []string{"outcome"}),
		BreedTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breedstudio_breed_status_transitions_total",
			Help: "Breed workflow status changes partitioned by target status.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.ColorResolutions, m.ImageGenerations, m.ImageDuration, m.ImagesSaved, m.BreedTransitions} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveColors(source string, err error) {
	if m == nil {
		return
	}
	m.ColorResolutions.WithLabelValues(source, outcome(err)).Inc()
}

func (m *Metrics) ObserveImage(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.ImageGenerations.WithLabelValues(kind, outcome(err)).Inc()
	m.ImageDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	m.ImagesSaved.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveStatus(status string) {
	if m == nil {
		return
	}
	m.BreedTransitions.WithLabelValues(status).Inc()
}
