package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout bounds a single remote write request.
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry over Prometheus remote write. Each
// metric update is written out immediately, so short-lived processes
// (planctl runs, servers that cannot be scraped) still land their
// orchestration counters.
type PushRegistry struct {
	writer *remoteWriter
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g.
	// "http://localhost:9090". The writer appends /api/v1/write.
	URL string
	// Prefix is prepended to every metric name with an underscore.
	Prefix string
	// Job is the job label attached to all series.
	Job string
	// Instance is the instance label attached to all series.
	Instance string
	// Timeout bounds each write request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewPushRegistry creates a PushRegistry writing to the configured
// endpoint.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &PushRegistry{writer: &remoteWriter{
		url:        cfg.URL + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		timeout:    timeout,
	}}
}

// NewGauge implements Registry.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{writer: r.writer, name: opts.Name}, nil
}

// NewGaugeVec implements Registry.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{writer: r.writer, name: opts.Name}, nil
}

// NewCounter implements Registry.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{writer: r.writer, name: opts.Name}, nil
}

// NewCounterVec implements Registry.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{writer: r.writer, name: opts.Name}, nil
}

// remoteWriter encodes single samples as snappy-compressed remote write
// requests.
type remoteWriter struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	timeout    time.Duration
}

// write sends one sample for the named metric.
func (w *remoteWriter) write(name string, value float64, labels map[string]string) error {
	req := &prompb.WriteRequest{
		Timeseries: []prompb.TimeSeries{w.timeSeries(name, value, labels)},
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// timeSeries builds the single-sample series for a metric value. Custom
// labels are emitted in sorted order so identical updates encode
// identically.
func (w *remoteWriter) timeSeries(name string, value float64, labels map[string]string) prompb.TimeSeries {
	metricName := name
	if w.prefix != "" {
		metricName = w.prefix + "_" + name
	}

	promLabels := make([]prompb.Label, 0, len(labels)+3)
	promLabels = append(promLabels, prompb.Label{Name: "__name__", Value: metricName})
	if w.job != "" {
		promLabels = append(promLabels, prompb.Label{Name: "job", Value: w.job})
	}
	if w.instance != "" {
		promLabels = append(promLabels, prompb.Label{Name: "instance", Value: w.instance})
	}
	for _, k := range sortedKeys(labels) {
		promLabels = append(promLabels, prompb.Label{Name: k, Value: labels[k]})
	}

	return prompb.TimeSeries{
		Labels: promLabels,
		Samples: []prompb.Sample{{
			Value:     value,
			Timestamp: time.Now().UnixMilli(),
		}},
	}
}

// pushGauge writes every Set. Errors are dropped; metrics delivery must
// never fail an orchestration.
type pushGauge struct {
	writer *remoteWriter
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	_ = g.writer.write(g.name, v, g.labels)
}

type pushGaugeVec struct {
	writer *remoteWriter
	name   string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{writer: g.writer, name: g.name, labels: labels}
}

// pushCounter keeps the running total locally and writes the new value on
// every increment.
type pushCounter struct {
	mu     sync.Mutex
	writer *remoteWriter
	name   string
	labels map[string]string
	value  float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	_ = c.writer.write(c.name, value, c.labels)
}

// pushCounterVec hands out one pushCounter per label set so totals keep
// accumulating across With calls.
type pushCounterVec struct {
	mu       sync.Mutex
	writer   *remoteWriter
	name     string
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelKey(labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		c.counters = make(map[string]*pushCounter)
	}
	if counter, ok := c.counters[key]; ok {
		return counter
	}

	counter := &pushCounter{writer: c.writer, name: c.name, labels: labels}
	c.counters[key] = counter
	return counter
}

// labelKey builds a stable map key for a label set.
func labelKey(labels prometheus.Labels) string {
	var b strings.Builder
	for _, k := range sortedKeys(labels) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
