package chronosync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spacemeshos/go-chronosync/metrics"
)

const (
	subsystem = "sync"
	nameLabel = "name"
)

var (
	digestsReceived = metrics.NewCounter(
		"digests_received_total",
		subsystem,
		"digests received from peers by kind",
		[]string{nameLabel, "kind"},
	)
	responses = metrics.NewCounter(
		"responses_total",
		subsystem,
		"responses sent to peers",
		[]string{nameLabel, "state"},
	)
	syncRequests = metrics.NewCounter(
		"requests_total",
		subsystem,
		"digest announcements sent",
		[]string{nameLabel},
	)
	inconsistencies = metrics.NewCounter(
		"inconsistencies_total",
		subsystem,
		"responses that did not lead to the announced digest",
		[]string{nameLabel},
	)
	changes = metrics.NewCounter(
		"states_changed_total",
		subsystem,
		"changes of the local state set by source",
		[]string{nameLabel, "source"},
	)
	evictions = metrics.NewCounter(
		"history_evictions_total",
		subsystem,
		"digests evicted from the history log",
		[]string{nameLabel},
	)
	pendingRequests = metrics.NewGauge(
		"pending_requests",
		subsystem,
		"requests waiting for the local state to change",
		[]string{nameLabel},
	)
)

func newTracker(name string) *tracker {
	return &tracker{
		received: map[digestKind]prometheus.Counter{
			digestCurrent: digestsReceived.WithLabelValues(name, digestCurrent.String()),
			digestEmpty:   digestsReceived.WithLabelValues(name, digestEmpty.String()),
			digestUnknown: digestsReceived.WithLabelValues(name, digestUnknown.String()),
			digestKnown:   digestsReceived.WithLabelValues(name, digestKnown.String()),
		},
		responded:      responses.WithLabelValues(name, "delayed"),
		satisfied:      responses.WithLabelValues(name, "pending"),
		requests:       syncRequests.WithLabelValues(name),
		inconsistent:   inconsistencies.WithLabelValues(name),
		localChanges:   changes.WithLabelValues(name, "local"),
		remoteChanges:  changes.WithLabelValues(name, "remote"),
		evicted:        evictions.WithLabelValues(name),
		pendingWaiting: pendingRequests.WithLabelValues(name),
	}
}

// tracker methods are safe to call on a nil tracker.
type tracker struct {
	received                    map[digestKind]prometheus.Counter
	responded, satisfied        prometheus.Counter
	requests, inconsistent      prometheus.Counter
	localChanges, remoteChanges prometheus.Counter
	evicted                     prometheus.Counter
	pendingWaiting              prometheus.Gauge
}

func (t *tracker) digestReceived(kind digestKind) {
	if t != nil {
		t.received[kind].Inc()
	}
}

func (t *tracker) responseSent() {
	if t != nil {
		t.responded.Inc()
	}
}

func (t *tracker) pendingSatisfied(n int) {
	if t != nil {
		t.satisfied.Add(float64(n))
	}
}

func (t *tracker) requestSent() {
	if t != nil {
		t.requests.Inc()
	}
}

func (t *tracker) inconsistency() {
	if t != nil {
		t.inconsistent.Inc()
	}
}

func (t *tracker) changed(local bool) {
	switch {
	case t == nil:
	case local:
		t.localChanges.Inc()
	default:
		t.remoteChanges.Inc()
	}
}

func (t *tracker) digestEvicted(Digest) {
	if t != nil {
		t.evicted.Inc()
	}
}

func (t *tracker) pending(n int) {
	if t != nil {
		t.pendingWaiting.Set(float64(n))
	}
}
