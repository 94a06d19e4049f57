// Package telemetry provides observability for EvorBrain.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics and change events encoded as
// CloudEvents.
//
// # Logging
//
// Logs go to the console and, when LoggingConfig.Dir is set, to a JSON
// lines file per day named evorbrain_YYYY-MM-DD.log. The level can be
// changed at runtime with SetLevel; every logger derived from the same
// root follows the change. RecentLogs reads back today's file:
//
//	entries, err := tel.Logger.RecentLogs(50, "warn")
//
// # Operations
//
// Each backend command is wrapped in StartOperation, which opens a span,
// tags a logger with the operation name and starts a timer. End records
// the outcome in evorbrain_operations_total and
// evorbrain_operation_duration_seconds and counts failures by kind in
// evorbrain_errors_total:
//
//	op := telemetry.StartOperation(ctx, "create_task")
//	err := store.CreateTask(op.Ctx, task)
//	op.End(err)
//
// # Change events
//
// Mutations publish events with type com.evorbrain.<entity>.<action> and
// source /evorbrain/<component>. The entity ID is the event subject.
// Subscribers receive events on a single delivery goroutine in publish
// order:
//
//	cancel := tel.Events.Subscribe(func(e cloudevents.Event) {
//	    fmt.Println(e.Type(), e.Subject())
//	}, telemetry.FilterByEntity(domain.EntityTask))
//	defer cancel()
package telemetry
