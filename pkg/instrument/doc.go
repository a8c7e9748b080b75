// Package instrument exports derive engine events to Prometheus and
// OpenTelemetry.
//
// Both exporters are derive.Observers; attach them to a scheduler:
//
//	metrics := instrument.Prometheus(instrument.WithNamespace("app"))
//	tracing := instrument.OpenTelemetry(instrument.WithTracerName("app"))
//
//	sched := derive.NewScheduler(loop,
//	    derive.WithObserver(derive.Observers(metrics, tracing)),
//	)
//
// Stores created WithFastPath emit no events and are not instrumented.
package instrument
