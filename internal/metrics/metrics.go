package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_marks_total",
		Help: "Attendance mark attempts by outcome.",
	}, []string{"outcome"})

	distance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoattend_mark_distance_meters",
		Help:    "Distance from the reference point reported on mark attempts.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 25000, 100000},
	})

	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_events_processed_total",
		Help: "Queue events handled by the worker by result.",
	}, []string{"result"})
)

// Mark counts one mark attempt with the given outcome label.
func Mark(outcome string) { marks.WithLabelValues(outcome).Inc() }

// Distance records the measured distance of a mark attempt.
func Distance(meters float64) { distance.Observe(meters) }

// Event counts one processed queue event.
func Event(result string) { events.WithLabelValues(result).Inc() }
