package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Change actions carried in event types.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionArchived  = "archived"
	ActionReordered = "reordered"
	ActionTagged    = "tagged"
	ActionUntagged  = "untagged"
	ActionOverdue   = "overdue"
	ActionCleaned   = "cleaned"
	ActionBackedUp  = "backed_up"
	ActionRestored  = "restored"
)

// EventTypePrefix starts every EvorBrain event type.
const EventTypePrefix = "com.evorbrain."

// Extension attribute names.
const (
	ExtEntityType = "entitytype"
	ExtAction     = "action"
)

// EventType builds "com.evorbrain.<entity>.<action>".
func EventType(entity, action string) string {
	return EventTypePrefix + entity + "." + action
}

// EventSource builds "/evorbrain/<component>".
func EventSource(component string) string {
	return "/evorbrain/" + component
}

// NewChangeEvent builds a CloudEvent describing a change to one entity.
// data is serialised as JSON; it may be nil.
func NewChangeEvent(component string, entity domain.EntityType, action, id string, data interface{}) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(EventSource(component))
	event.SetType(EventType(string(entity), action))
	event.SetTime(time.Now().UTC())
	event.SetSpecVersion(cloudevents.VersionV1)
	if id != "" {
		event.SetSubject(id)
	}
	event.SetExtension(ExtEntityType, string(entity))
	event.SetExtension(ExtAction, action)

	if data != nil {
		if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
			return event, fmt.Errorf("failed to encode event data: %w", err)
		}
	}

	if err := event.Validate(); err != nil {
		return event, fmt.Errorf("invalid change event: %w", err)
	}
	return event, nil
}

func newEventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

// EventSubscriber handles a delivered event. Subscribers run on the
// delivery goroutine and must not block.
type EventSubscriber func(event cloudevents.Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event cloudevents.Event) bool

// EventPublisher delivers change events to in-process subscribers.
type EventPublisher struct {
	config  EventsConfig
	metrics *Metrics
	buffer  chan cloudevents.Event

	mu          sync.RWMutex
	subscribers map[uint64]subscriberEntry
	nextID      uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
// metrics may be nil.
func NewEventPublisher(cfg EventsConfig, metrics *Metrics) (*EventPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config:      cfg,
		metrics:     metrics,
		subscribers: make(map[uint64]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan cloudevents.Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish queues event for delivery. When the buffer is full the event is
// dropped and counted.
func (ep *EventPublisher) Publish(event cloudevents.Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if ep.buffer == nil {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		ep.metrics.RecordEventDropped()
		return fmt.Errorf("event buffer full, event dropped")
	}
}

// PublishChange builds and publishes a change event. Failures are returned
// but callers normally only log them.
func (ep *EventPublisher) PublishChange(component string, entity domain.EntityType, action, id string, data interface{}) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	event, err := NewChangeEvent(component, entity, action, id, data)
	if err != nil {
		return err
	}
	return ep.Publish(event)
}

// Subscribe registers a subscriber and returns a function that removes it.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) func() {
	if ep == nil {
		return func() {}
	}

	ep.mu.Lock()
	id := ep.nextID
	ep.nextID++
	ep.subscribers[id] = subscriberEntry{subscriber: subscriber, filter: filter}
	ep.mu.Unlock()

	return func() {
		ep.mu.Lock()
		delete(ep.subscribers, id)
		ep.mu.Unlock()
	}
}

// processEvents delivers buffered events until shutdown, then drains the
// buffer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event cloudevents.Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil {
		return nil
	}

	ep.once.Do(ep.cancel)

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType only allows events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event cloudevents.Event) bool {
		return typeSet[event.Type()]
	}
}

// FilterByEntity only allows events about the given entity types.
func FilterByEntity(entities ...domain.EntityType) EventFilter {
	prefixes := make([]string, len(entities))
	for i, e := range entities {
		prefixes[i] = EventTypePrefix + string(e) + "."
	}

	return func(event cloudevents.Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(event.Type(), p) {
				return true
			}
		}
		return false
	}
}

// FilterBySubject only allows events about one entity ID.
func FilterBySubject(id string) EventFilter {
	return func(event cloudevents.Event) bool {
		return event.Subject() == id
	}
}
