// Package metrics counts protocol traffic. Counters are exposed two ways:
// as Prometheus counters under the "acl" namespace for scraping, and as a
// flat name->value snapshot that the METRICS_EXPORT operation dumps into the
// knowledge base.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "acl"

// Collector tracks inbound and outbound envelope counts.
type Collector struct {
	mu     sync.Mutex
	counts map[string]int64

	inTotal          prometheus.Counter
	outTotal         prometheus.Counter
	inPerformative   *prometheus.CounterVec
	outPerformative  *prometheus.CounterVec
	inType           *prometheus.CounterVec
	outType          *prometheus.CounterVec
	validationErrors prometheus.Counter
	bodyTooLarge     prometheus.Counter
}

// NewCollector registers the counters with reg. Pass a fresh
// prometheus.NewRegistry in tests to avoid duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		counts: make(map[string]int64),
		inTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_total",
			Help:      "Envelopes received and validated.",
		}),
		outTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_total",
			Help:      "Envelopes sent.",
		}),
		inPerformative: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_performative_total",
			Help:      "Received envelopes by performative.",
		}, []string{"performative"}),
		outPerformative: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_performative_total",
			Help:      "Sent envelopes by performative.",
		}, []string{"performative"}),
		inType: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_type_total",
			Help:      "Received envelopes by payload type.",
		}, []string{"payload_type"}),
		outType: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_type_total",
			Help:      "Sent envelopes by payload type.",
		}, []string{"payload_type"}),
		validationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_validation_errors_total",
			Help:      "Inbound messages rejected by validation.",
		}),
		bodyTooLarge: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_body_too_large_total",
			Help:      "Inbound messages rejected by the size ceiling.",
		}),
	}
}

func (c *Collector) bump(name string) {
	c.mu.Lock()
	c.counts[name]++
	c.mu.Unlock()
}

// MarkIn records one validated inbound envelope. All Mark methods are no-ops
// on a nil Collector so callers can run without metrics wired.
func (c *Collector) MarkIn(performative, payloadType string) {
	if c == nil {
		return
	}
	c.inTotal.Inc()
	c.bump("acl_in_total")
	if performative != "" {
		c.inPerformative.WithLabelValues(performative).Inc()
		c.bump(fmt.Sprintf("acl_in_performative_%s", performative))
	}
	if payloadType != "" {
		c.inType.WithLabelValues(payloadType).Inc()
		c.bump(fmt.Sprintf("acl_in_type_%s", payloadType))
	}
}

// MarkOut records one outbound envelope.
func (c *Collector) MarkOut(performative, payloadType string) {
	if c == nil {
		return
	}
	c.outTotal.Inc()
	c.bump("acl_out_total")
	if performative != "" {
		c.outPerformative.WithLabelValues(performative).Inc()
		c.bump(fmt.Sprintf("acl_out_performative_%s", performative))
	}
	if payloadType != "" {
		c.outType.WithLabelValues(payloadType).Inc()
		c.bump(fmt.Sprintf("acl_out_type_%s", payloadType))
	}
}

// MarkValidationError records an inbound message rejected by validation.
func (c *Collector) MarkValidationError() {
	if c == nil {
		return
	}
	c.validationErrors.Inc()
	c.bump("acl_in_validation_errors_total")
}

// MarkBodyTooLarge records an inbound message rejected by the size ceiling.
func (c *Collector) MarkBodyTooLarge() {
	if c == nil {
		return
	}
	c.bodyTooLarge.Inc()
	c.bump("acl_in_body_too_large_total")
}

// Snapshot copies the flat counters. With reset they are zeroed afterwards;
// the Prometheus counters are monotonic and never reset.
func (c *Collector) Snapshot(reset bool) map[string]int64 {
	if c == nil {
		return map[string]int64{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	if reset {
		c.counts = make(map[string]int64)
	}
	return out
}
