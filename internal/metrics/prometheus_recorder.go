package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	taskResults     *prom.CounterVec
	notifications   *prom.CounterVec
	webhookDuration prom.Histogram
	inactiveBuilds  prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dochost",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "dochost",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dochost",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dochost",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dochost",
			Name:      "task_results_total",
			Help:      "Task executions by task name and result",
		}, []string{"task", "result"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dochost",
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		webhookDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "dochost",
			Name:      "webhook_duration_seconds",
			Help:      "Duration of outbound webhook POSTs",
			Buckets:   prom.DefBuckets,
		}),
		inactiveBuilds: prom.NewCounter(prom.CounterOpts{
			Namespace: "dochost",
			Name:      "inactive_builds_finished_total",
			Help:      "Builds terminated by the inactivity sweep",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.taskResults, pr.notifications, pr.webhookDuration, pr.inactiveBuilds)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncTaskResult(task string, success bool) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, successLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncNotification(channel string, result ResultLabel) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(channel, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveWebhookDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.webhookDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddInactiveBuildsFinished(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.inactiveBuilds.Add(float64(n))
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
