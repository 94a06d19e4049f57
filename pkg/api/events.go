package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// streamBuffer is the per-client queue length; a client that falls
// further behind loses events.
const streamBuffer = 64

// handleEvents streams change events as server-sent events. ?entity takes
// a comma separated list of entity types to receive; "database" selects
// backup, restore and cleanup events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, domain.NewInternalError("streaming not supported", nil))
		return
	}

	filter, err := eventFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events := make(chan cloudevents.Event, streamBuffer)
	unsubscribe := s.tel.Events.Subscribe(func(event cloudevents.Event) {
		select {
		case events <- event:
		default:
			s.tel.Metrics.RecordEventDropped()
		}
	}, filter)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: ready\ndata: connected\n\n")
	flusher.Flush()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream opened")
	defer s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream closed")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn().Err(err).Str("event_id", event.ID()).Msg("failed to encode event")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID(), event.Type(), data)
			flusher.Flush()
		}
	}
}

func eventFilter(r *http.Request) (telemetry.EventFilter, error) {
	raw := r.URL.Query().Get("entity")
	if raw == "" {
		return nil, nil
	}

	var entities []domain.EntityType
	for _, part := range strings.Split(raw, ",") {
		entity := domain.EntityType(strings.TrimSpace(part))
		if !entity.Valid() && entity != domain.EntityDatabase {
			return nil, domain.NewBadRequestError(fmt.Sprintf("unknown entity type %q", part)).WithDetail("field", "entity")
		}
		entities = append(entities, entity)
	}
	return telemetry.FilterByEntity(entities...), nil
}
