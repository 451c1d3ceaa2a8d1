package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry on a dedicated Prometheus registry.
// The server exposes it on /metrics; orchestration metrics sit alongside
// the standard Go and process collectors.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// NewScrapeRegistry creates a ScrapeRegistry with the standard runtime
// collectors registered.
func NewScrapeRegistry() (*ScrapeRegistry, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}

	return &ScrapeRegistry{prom: reg}, nil
}

// Handler returns the http.Handler served on /metrics.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *ScrapeRegistry) register(name string, c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	return nil
}

// NewGauge implements Registry.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := r.register(opts.Name, g); err != nil {
		return nil, err
	}
	return scrapeGauge{g}, nil
}

// NewGaugeVec implements Registry.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	v := prometheus.NewGaugeVec(opts, labels)
	if err := r.register(opts.Name, v); err != nil {
		return nil, err
	}
	return scrapeGaugeVec{v}, nil
}

// NewCounter implements Registry.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c := prometheus.NewCounter(opts)
	if err := r.register(opts.Name, c); err != nil {
		return nil, err
	}
	return scrapeCounter{c}, nil
}

// NewCounterVec implements Registry.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	v := prometheus.NewCounterVec(opts, labels)
	if err := r.register(opts.Name, v); err != nil {
		return nil, err
	}
	return scrapeCounterVec{v}, nil
}

// The scrape wrappers embed the prometheus types, which already satisfy
// the value methods; only the vec With methods need adapting so callers
// never depend on the mode they run under.

type scrapeGauge struct {
	prometheus.Gauge
}

type scrapeGaugeVec struct {
	vec *prometheus.GaugeVec
}

func (g scrapeGaugeVec) With(labels prometheus.Labels) Gauge {
	return scrapeGauge{g.vec.With(labels)}
}

type scrapeCounter struct {
	prometheus.Counter
}

type scrapeCounterVec struct {
	vec *prometheus.CounterVec
}

func (c scrapeCounterVec) With(labels prometheus.Labels) Counter {
	return scrapeCounter{c.vec.With(labels)}
}
