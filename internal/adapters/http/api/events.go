package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
)

// eventRequest is the wire shape of POST /events.
type eventRequest struct {
	EventID     string         `json:"event_id" validate:"omitempty,max=256"`
	TaskID      string         `json:"task_id" validate:"required,max=256"`
	CourierID   string         `json:"courier_id"`
	Type        string         `json:"type" validate:"required,oneof=TASK_CREATED COURIER_ASSIGNED PICKUP DELIVERED"`
	TS          string         `json:"ts" validate:"required"`
	City        string         `json:"city"`
	Weather     string         `json:"weather"`
	VehicleType string         `json:"vehicle_type"`
	DistanceKM  *float64       `json:"distance_km" validate:"omitempty,gte=0"`
	PromiseTime string         `json:"promise_time"`
	Features    map[string]any `json:"features"`
}

func (e *eventRequest) toEvent() (model.Event, error) {
	if err := validate.Struct(e); err != nil {
		return model.Event{}, err
	}
	ts, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return model.Event{}, errors.New("invalid ts; must be RFC3339")
	}
	ev := model.Event{
		EventID:     e.EventID,
		TaskID:      e.TaskID,
		CourierID:   e.CourierID,
		Type:        model.EventType(e.Type),
		TS:          ts,
		City:        e.City,
		Weather:     e.Weather,
		VehicleType: e.VehicleType,
		DistanceKM:  e.DistanceKM,
		Features:    e.Features,
	}
	if e.PromiseTime != "" {
		pt, err := time.Parse(time.RFC3339, e.PromiseTime)
		if err != nil {
			return model.Event{}, fmt.Errorf("invalid promise_time: %w", err)
		}
		ev.PromiseTime = &pt
	}
	return ev, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, l logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: l}
}

// HandlePostEvent handles POST /events requests. A replayed event id is
// acknowledged with 200 and duplicate=true.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}

	err = h.deps.Ingest(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, service.ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	default:
		writeError(r.Context(), w, h.logger, Wrap(op, err))
	}
}
