// Package prom exports cache hook events as Prometheus metrics.
// Keys are not used as labels; cardinality stays bounded by tag and reason.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/account"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

// Hooks implements ledgercache.Hooks on top of a set of collectors.
type Hooks struct {
	fetches          *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	fetchFailures    *prometheus.CounterVec
	degraded         *prometheus.CounterVec
	snapshotHealed   *prometheus.CounterVec
	snapshotRejected prometheus.Counter
	genErrors        prometheus.Counter
	subscriberPanics prometheus.Counter
}

var _ ledgercache.Hooks = (*Hooks)(nil)

// New registers the collectors with reg. namespace defaults to "ledgercache".
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "ledgercache"
	}
	h := &Hooks{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "completed_total",
			Help:      "Account reads applied to the cache, by decode tag",
		}, []string{"tag"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Latency of successful account reads",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failed_total",
			Help:      "Account reads that failed, by error kind",
		}, []string{"kind"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "degraded_total",
			Help:      "Decodes that took the fallback or default-filled path",
		}, []string{"tag"}),
		snapshotHealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "healed_total",
			Help:      "Snapshots deleted on read, by reason",
		}, []string{"reason"}),
		snapshotRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "rejected_total",
			Help:      "Snapshot writes rejected by the provider",
		}),
		genErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "gen_errors_total",
			Help:      "Generation store failures",
		}),
		subscriberPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_panics_total",
			Help:      "Recovered panics in subscriber callbacks",
		}),
	}
	for _, c := range []prometheus.Collector{
		h.fetches, h.fetchLatency, h.fetchFailures, h.degraded,
		h.snapshotHealed, h.snapshotRejected, h.genErrors, h.subscriberPanics,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) FetchCompleted(_ string, tag account.Tag, elapsed time.Duration) {
	h.fetches.WithLabelValues(tag.String()).Inc()
	h.fetchLatency.Observe(elapsed.Seconds())
}

func (h *Hooks) FetchFailed(_ string, err error) {
	h.fetchFailures.WithLabelValues(ledger.KindOf(err).String()).Inc()
}

func (h *Hooks) DecodeDegraded(_ string, tag account.Tag, _ error) {
	h.degraded.WithLabelValues(tag.String()).Inc()
}

func (h *Hooks) SnapshotHealed(_ string, reason string) {
	h.snapshotHealed.WithLabelValues(reason).Inc()
}

func (h *Hooks) SnapshotRejected(string)     { h.snapshotRejected.Inc() }
func (h *Hooks) GenError(string, error)      { h.genErrors.Inc() }
func (h *Hooks) SubscriberPanic(string, any) { h.subscriberPanics.Inc() }
