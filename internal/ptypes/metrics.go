package ptypes

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespaceConstant           = "sierra_ptype"
	patronsFoundMetricNameConstant     = "patrons_found_total"
	patronsFoundMetricHelpConstant     = "Patrons matched by the PType query, per juvenile PType."
	patronsUpdatedMetricNameConstant   = "patrons_updated_total"
	patronsUpdatedMetricHelpConstant   = "Patrons whose PType was changed, per juvenile PType."
	pairFailuresMetricNameConstant     = "pair_failures_total"
	pairFailuresMetricHelpConstant     = "PType pairs that failed to migrate, per juvenile PType."
	lastRunTimestampMetricNameConstant = "last_run_timestamp_seconds"
	lastRunTimestampMetricHelpConstant = "Unix time at which the last run finished."
	juvenilePTypeMetricLabelConstant   = "juvenile_ptype"
	adultPTypeMetricLabelConstant      = "adult_ptype"
	integerLabelBaseConstant           = 10
)

// RunMetrics holds the run counters in a private registry. A nil *RunMetrics
// discards every observation.
type RunMetrics struct {
	registry         *prometheus.Registry
	patronsFound     *prometheus.CounterVec
	patronsUpdated   *prometheus.CounterVec
	pairFailures     *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
}

// NewRunMetrics registers the run collectors with a fresh registry.
func NewRunMetrics() *RunMetrics {
	pairLabels := []string{juvenilePTypeMetricLabelConstant, adultPTypeMetricLabelConstant}

	metrics := &RunMetrics{
		registry: prometheus.NewRegistry(),
		patronsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      patronsFoundMetricNameConstant,
			Help:      patronsFoundMetricHelpConstant,
		}, pairLabels),
		patronsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      patronsUpdatedMetricNameConstant,
			Help:      patronsUpdatedMetricHelpConstant,
		}, pairLabels),
		pairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      pairFailuresMetricNameConstant,
			Help:      pairFailuresMetricHelpConstant,
		}, pairLabels),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      lastRunTimestampMetricNameConstant,
			Help:      lastRunTimestampMetricHelpConstant,
		}),
	}

	metrics.registry.MustRegister(metrics.patronsFound, metrics.patronsUpdated, metrics.pairFailures, metrics.lastRunTimestamp)
	return metrics
}

// ObservePair records the outcome of one pair.
func (metrics *RunMetrics) ObservePair(outcome PairOutcome) {
	if metrics == nil {
		return
	}

	juvenileLabel := strconv.FormatInt(int64(outcome.Pair.Juvenile), integerLabelBaseConstant)
	adultLabel := strconv.FormatInt(int64(outcome.Pair.Adult), integerLabelBaseConstant)

	metrics.patronsFound.WithLabelValues(juvenileLabel, adultLabel).Add(float64(outcome.Found))
	metrics.patronsUpdated.WithLabelValues(juvenileLabel, adultLabel).Add(float64(outcome.Updated))
	if outcome.Error != nil {
		metrics.pairFailures.WithLabelValues(juvenileLabel, adultLabel).Inc()
	}
}

// MarkCompleted stamps the time at which the run finished.
func (metrics *RunMetrics) MarkCompleted(completedAt time.Time) {
	if metrics == nil {
		return
	}
	metrics.lastRunTimestamp.Set(float64(completedAt.Unix()))
}

// Gatherer exposes the private registry. A nil *RunMetrics gathers nothing.
func (metrics *RunMetrics) Gatherer() prometheus.Gatherer {
	if metrics == nil {
		return prometheus.NewRegistry()
	}
	return metrics.registry
}

// WriteTextfile writes the metrics in the text exposition format, suitable for
// the node_exporter textfile collector. The file is replaced atomically.
func (metrics *RunMetrics) WriteTextfile(filePath string) error {
	if metrics == nil {
		return nil
	}
	return prometheus.WriteToTextfile(filePath, metrics.registry)
}
