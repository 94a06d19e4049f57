package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/policy"
	"github.com/evorbrain/evorbrain/pkg/query"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// component is the event source of every change published here.
const component = "service"

// Service implements the EvorBrain command surface. Every method validates
// its input, runs inside an instrumented operation and returns
// *domain.AppError values only.
type Service struct {
	store     stores.Store
	validator *domain.Validator
	guards    *policy.Engine
	tel       *telemetry.Telemetry
	logger    *telemetry.Logger
	filter    query.Options
	now       func() time.Time
}

// Options configures a Service. Only Store is required.
type Options struct {
	Store     stores.Store
	Guards    *policy.Engine
	Telemetry *telemetry.Telemetry
	Filter    query.Options

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// New creates a service over an initialised, migrated store.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
	}

	guards := opts.Guards
	if guards == nil {
		var err error
		guards, err = policy.NewEngine(tel.Logger.Zerolog())
		if err != nil {
			return nil, fmt.Errorf("failed to create policy engine: %w", err)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	validator := domain.NewValidator()
	validator.Now = now

	return &Service{
		store:     opts.Store,
		validator: validator,
		guards:    guards,
		tel:       tel,
		logger:    tel.Logger.NewComponentLogger(component),
		filter:    opts.Filter,
		now:       now,
	}, nil
}

// Store returns the underlying store.
func (s *Service) Store() stores.Store {
	return s.store
}

// Telemetry returns the telemetry bundle the service reports to.
func (s *Service) Telemetry() *telemetry.Telemetry {
	return s.tel
}

// Guards returns the policy engine consulted before destructive operations.
func (s *Service) Guards() *policy.Engine {
	return s.guards
}

// call is one instrumented command invocation.
type call struct {
	*telemetry.InstrumentedContext
	name string
}

func (s *Service) start(ctx context.Context, name string, entity domain.EntityType, id string) *call {
	attrs := telemetry.AttrEntityType.String(string(entity))
	ic := s.tel.StartOperation(ctx, name, attrs, telemetry.AttrEntityID.String(id))
	return &call{InstrumentedContext: ic, name: name}
}

// end converts stray errors into database errors and closes the operation.
func (c *call) end(errp *error) {
	if err := *errp; err != nil {
		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			*errp = domain.NewDatabaseError(strings.ReplaceAll(c.name, "_", " "), err)
		}
	}
	c.End(*errp)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func newID() string {
	return uuid.New().String()
}

// publish emits a change event. Delivery failures are logged only.
func (s *Service) publish(entity domain.EntityType, action, id string, data interface{}) {
	if err := s.tel.Events.PublishChange(component, entity, action, id, data); err != nil {
		s.logger.WithError(err).WithEntity(entity, id).Warn("failed to publish change event")
	}
}

// guard evaluates the destructive-operation policies and records denials.
func (s *Service) guard(ctx context.Context, input policy.GuardInput) error {
	decision, err := s.guards.Check(ctx, input)
	if decision != nil {
		for _, w := range decision.Warnings {
			s.logger.WithFields(map[string]interface{}{
				"policy":    w.Policy,
				"operation": input.Operation,
			}).Warn(w.Message)
		}
		for _, v := range decision.Violations {
			s.tel.Metrics.RecordPolicyDenial(v.Policy)
		}
	}
	return err
}

// guardDelete refuses deleting an entity that still has children.
func (s *Service) guardDelete(ctx context.Context, entity domain.EntityType, id string) error {
	children, err := s.store.CountChildren(ctx, entity, id)
	if err != nil {
		return err
	}
	return s.guard(ctx, policy.GuardInput{
		Operation:  policy.OpDelete,
		EntityType: entity,
		EntityID:   id,
		Counts:     map[string]int64{policy.CountChildren: children},
	})
}

// refreshEntityCounts updates the entity gauges after a change in row
// counts.
func (s *Service) refreshEntityCounts(ctx context.Context) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("failed to refresh entity counts")
		return
	}
	s.recordStats(stats)
}

func (s *Service) recordStats(stats *domain.DatabaseStats) {
	m := s.tel.Metrics
	m.SetEntityCount(string(domain.EntityLifeArea), float64(stats.LifeAreasCount))
	m.SetEntityCount(string(domain.EntityGoal), float64(stats.GoalsCount))
	m.SetEntityCount(string(domain.EntityProject), float64(stats.ProjectsCount))
	m.SetEntityCount(string(domain.EntityTask), float64(stats.TasksCount))
	m.SetEntityCount(string(domain.EntityNote), float64(stats.NotesCount))
	m.SetEntityCount(string(domain.EntityTag), float64(stats.TagsCount))
	m.SetEntityCount("archived", float64(stats.ArchivedItemsCount))
}

// ensureExists checks that a referenced parent exists. The not-found error
// names the request field that referenced it.
func (s *Service) ensureExists(ctx context.Context, entity domain.EntityType, id, field string) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}

	var err error
	switch entity {
	case domain.EntityLifeArea:
		_, err = s.store.GetLifeArea(ctx, id)
	case domain.EntityGoal:
		_, err = s.store.GetGoal(ctx, id)
	case domain.EntityProject:
		_, err = s.store.GetProject(ctx, id)
	case domain.EntityTask:
		_, err = s.store.GetTask(ctx, id)
	default:
		return domain.NewBadRequestError(fmt.Sprintf("unknown parent type: %s", entity))
	}

	if domain.IsNotFound(err) {
		return domain.NewNotFoundError(entity, id).WithDetail("field", field)
	}
	return err
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
