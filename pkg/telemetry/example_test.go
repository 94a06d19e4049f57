package telemetry_test

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// Example_operation demonstrates instrumenting a backend command.
func Example_operation() {
	tel := telemetry.NewNop()
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "delete_goal", telemetry.AttrEntityType.String("goal"))
	err := domain.NewNotFoundError(domain.EntityGoal, "b5c3")
	op.End(err)

	fmt.Println(domain.KindOf(err))
	// Output: not_found
}

// Example_changeEvents demonstrates subscribing to change events.
func Example_changeEvents() {
	tel := telemetry.NewNop()
	defer tel.Shutdown(context.Background())

	cancel := tel.Events.Subscribe(func(e cloudevents.Event) {
		fmt.Printf("%s %s from %s\n", e.Type(), e.Subject(), e.Source())
	}, telemetry.FilterByEntity(domain.EntityTask))
	defer cancel()

	_ = tel.Events.PublishChange("service", domain.EntityGoal, telemetry.ActionCreated, "goal-1", nil)
	_ = tel.Events.PublishChange("service", domain.EntityTask, telemetry.ActionUpdated, "task-1",
		map[string]string{"status": "completed"})

	// Output: com.evorbrain.task.updated task-1 from /evorbrain/service
}

// Example_runtimeLevel demonstrates changing the log level while running.
func Example_runtimeLevel() {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Format: "json", Output: "none"})
	if err != nil {
		panic(err)
	}

	if err := logger.SetLevel("verbose"); err != nil {
		fmt.Println(domain.IsValidation(err))
	}
	_ = logger.SetLevel("debug")
	fmt.Println(logger.Level())
	// Output:
	// true
	// debug
}
