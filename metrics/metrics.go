// Package metrics is the observability handle the store operators report to.
//
// Operators mark named events ([Aspect]) and observe their latency. Each
// aspect has a counter and a "<aspect>.response_time" histogram in
// milliseconds. The handle is passed in explicitly; nothing here registers
// with a global registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aspect names an event the operators report.
type Aspect string

const (
	WriteSuccess     Aspect = "write.success"
	WriteFailure     Aspect = "write.failure"
	WriteTimeout     Aspect = "write.timeout"
	ProvisionSuccess Aspect = "provision.success"
	ProvisionFailure Aspect = "provision.failure"
	ReadSuccess      Aspect = "read.success"
	ReadFailure      Aspect = "read.failure"
	ReadTimeout      Aspect = "read.timeout"
	ReadDocuments    Aspect = "read.documents"
)

// ResponseTime is the histogram name mirroring a.
func (a Aspect) ResponseTime() string {
	return string(a) + ".response_time"
}

// Observer receives events and latencies.
type Observer interface {
	// Mark counts one occurrence of a.
	Mark(a Aspect)
	// Observe records d in the response-time histogram of a.
	Observe(a Aspect, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Mark(Aspect)                   {}
func (Nop) Observe(Aspect, time.Duration) {}

// Prometheus reports to a Prometheus registerer.
type Prometheus struct {
	group        string
	events       *prometheus.CounterVec
	responseTime *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on reg. group labels every series,
// typically with the table name.
func NewPrometheus(reg prometheus.Registerer, namespace, group string) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		group: group,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Store operator events by aspect",
			},
			[]string{"group", "aspect"},
		),
		responseTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_time_milliseconds",
				Help:      "Store operator response time in milliseconds",
				// Puts land in the low buckets, provisioning with the
				// table waiter in the top ones.
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
			},
			[]string{"group", "aspect"},
		),
	}
}

func (p *Prometheus) Mark(a Aspect) {
	p.events.WithLabelValues(p.group, string(a)).Inc()
}

func (p *Prometheus) Observe(a Aspect, d time.Duration) {
	p.responseTime.WithLabelValues(p.group, a.ResponseTime()).Observe(float64(d) / float64(time.Millisecond))
}

// Events exposes the counter vector for scraping helpers and tests.
func (p *Prometheus) Events() *prometheus.CounterVec { return p.events }

// ResponseTimes exposes the histogram vector.
func (p *Prometheus) ResponseTimes() *prometheus.HistogramVec { return p.responseTime }

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	counts    map[Aspect]int
	latencies map[Aspect][]time.Duration
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counts:    make(map[Aspect]int),
		latencies: make(map[Aspect][]time.Duration),
	}
}

func (r *Recorder) Mark(a Aspect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[a]++
}

func (r *Recorder) Observe(a Aspect, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[a] = append(r.latencies[a], d)
}

// Count returns how many times a was marked.
func (r *Recorder) Count(a Aspect) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[a]
}

// Latencies returns the observations recorded for a.
func (r *Recorder) Latencies(a Aspect) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.latencies[a]...)
}

// Multi fans out to several observers.
type Multi []Observer

func (m Multi) Mark(a Aspect) {
	for _, o := range m {
		o.Mark(a)
	}
}

func (m Multi) Observe(a Aspect, d time.Duration) {
	for _, o := range m {
		o.Observe(a, d)
	}
}
