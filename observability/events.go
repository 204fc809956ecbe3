package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventCounters struct {
	published *prometheus.CounterVec
}

var (
	eventsOnce sync.Once
	eventsReg  *eventCounters
)

// Events returns the registry tracking structured node events.
func Events() *eventCounters {
	eventsOnce.Do(func() {
		eventsReg = &eventCounters{
			published: counterVec("events", "published_total", "Count of events published to the node stream segmented by type.", "type"),
		}
		prometheus.MustRegister(eventsReg.published)
	})
	return eventsReg
}

// RecordPublished increments the published counter for the event type.
func (m *eventCounters) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(labelOr(eventType, "unknown")).Inc()
}
