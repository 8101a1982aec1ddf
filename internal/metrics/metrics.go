// Package metrics exposes Prometheus instrumentation for the tracking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhotosProcessed counts inbound photos that reached the engine.
	PhotosProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "photos_processed_total",
		Help:      "Number of photos processed by the engine.",
	})

	// MatchesFound counts identity resolutions that found an existing stone.
	MatchesFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "matches_found_total",
		Help:      "Number of photos matched to an existing stone.",
	})

	// StonesRegistered counts new stone registrations.
	StonesRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "stones_registered_total",
		Help:      "Number of new stones registered.",
	})

	// SightingsRecorded counts committed sightings, including first sightings.
	SightingsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "sightings_recorded_total",
		Help:      "Number of sightings appended to stone histories.",
	})

	// SessionsExpired counts sessions cancelled by the TTL sweep.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "sessions_expired_total",
		Help:      "Number of sessions auto-cancelled after idle timeout.",
	})

	// CollaboratorErrors counts failed calls to external collaborators,
	// labelled by collaborator name.
	CollaboratorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pebbletrail",
		Name:      "collaborator_errors_total",
		Help:      "Number of failed external collaborator calls.",
	}, []string{"collaborator"})

	// ResolveDuration observes identity resolution latency.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pebbletrail",
		Name:      "resolve_duration_seconds",
		Help:      "Latency of similarity search resolution.",
		Buckets:   prometheus.DefBuckets,
	})
)
