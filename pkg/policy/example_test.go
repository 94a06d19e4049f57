package policy_test

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/policy"
)

// ExampleEngine_Check shows the refusal returned when deleting a life area
// that still has goals.
func ExampleEngine_Check() {
	eng, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		panic(err)
	}

	_, err = eng.Check(context.Background(), policy.GuardInput{
		Operation:  policy.OpDelete,
		EntityType: domain.EntityLifeArea,
		Counts:     map[string]int64{policy.CountChildren: 3},
	})

	if err == nil {
		fmt.Println("allowed")
		return
	}
	fmt.Println(domain.AsAppError(err).UserMessage())
	// Output: Validation failed: Cannot delete life area: 3 goals are still associated with it. Please delete or reassign them first.
}
