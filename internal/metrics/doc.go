// Package metrics provides the observability hooks for builds, tasks and
// notification delivery.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	notifier := notify.New(store, mailer, notify.Options{Recorder: metrics.NoopRecorder{}})
//
// To enable metrics, inject a PrometheusRecorder bound to a registry and
// expose the registry with HTTPHandler.
package metrics
