package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/planweaver/planweaver/metrics"
)

// Metrics bundles the orchestration counters the dispatcher and client
// facade report. All fields are non-nil after NewMetrics.
type Metrics struct {
	// InstancesStarted counts orchestrations started by the client facade.
	InstancesStarted metrics.Counter
	// InstancesCompleted counts terminal successes.
	InstancesCompleted metrics.Counter
	// InstancesFailed counts terminal failures.
	InstancesFailed metrics.Counter
	// ActivityAttempts counts individual activity attempts by activity
	// name and outcome (success, retry, failure).
	ActivityAttempts metrics.CounterVec
	// ActivitySeconds records the duration of the most recent attempt per
	// activity.
	ActivitySeconds metrics.GaugeVec
	// QueueDepth tracks how many instances are currently runnable.
	QueueDepth metrics.Gauge
}

// Attempt outcomes used as the "outcome" label of ActivityAttempts.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// NewMetrics creates the orchestration metric bundle on the given
// registry.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.InstancesStarted, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "planweaver_instances_started_total",
		Help: "Orchestration instances started.",
	}); err != nil {
		return nil, err
	}
	if m.InstancesCompleted, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "planweaver_instances_completed_total",
		Help: "Orchestration instances that reached terminal success.",
	}); err != nil {
		return nil, err
	}
	if m.InstancesFailed, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "planweaver_instances_failed_total",
		Help: "Orchestration instances that reached terminal failure.",
	}); err != nil {
		return nil, err
	}
	if m.ActivityAttempts, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "planweaver_activity_attempts_total",
		Help: "Activity attempts by activity name and outcome.",
	}, []string{"activity", "outcome"}); err != nil {
		return nil, err
	}
	if m.ActivitySeconds, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planweaver_activity_duration_seconds",
		Help: "Duration of the most recent attempt per activity.",
	}, []string{"activity"}); err != nil {
		return nil, err
	}
	if m.QueueDepth, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "planweaver_dispatch_queue_depth",
		Help: "Instances currently runnable.",
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordStart counts a started instance if metrics are enabled. Exported
// for the client facade, which reports starts from outside the engine.
func (m *Metrics) RecordStart() {
	if m == nil {
		return
	}
	m.InstancesStarted.Inc()
}

// attempt records one activity attempt if metrics are enabled.
func (m *Metrics) attempt(activity, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ActivityAttempts.With(prometheus.Labels{"activity": activity, "outcome": outcome}).Inc()
	m.ActivitySeconds.With(prometheus.Labels{"activity": activity}).Set(seconds)
}

// terminal records a terminal orchestration outcome if metrics are
// enabled.
func (m *Metrics) terminal(completed bool) {
	if m == nil {
		return
	}
	if completed {
		m.InstancesCompleted.Inc()
	} else {
		m.InstancesFailed.Inc()
	}
}

// queueDepth publishes the runnable-instance count if metrics are enabled.
func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
