// Package model contains domain models passed between layers.
package model

import "time"

// EventType names a delivery milestone carried by a raw event.
type EventType string

// Canonical milestone event types.
const (
	EventTaskCreated     EventType = "TASK_CREATED"
	EventCourierAssigned EventType = "COURIER_ASSIGNED"
	EventPickup          EventType = "PICKUP"
	EventDelivered       EventType = "DELIVERED"
)

// Valid reports whether t is one of the canonical milestone types.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventCourierAssigned, EventPickup, EventDelivered:
		return true
	}
	return false
}

// Event is a raw milestone event for a delivery task.
// Static attributes are optional and usually only present on the first event of a task.
type Event struct {
	EventID     string         `json:"event_id"`
	TaskID      string         `json:"task_id"`
	CourierID   string         `json:"courier_id,omitempty"`
	Type        EventType      `json:"type"`
	TS          time.Time      `json:"ts"`
	City        string         `json:"city,omitempty"`
	Weather     string         `json:"weather,omitempty"`
	VehicleType string         `json:"vehicle_type,omitempty"`
	DistanceKM  *float64       `json:"distance_km,omitempty"`
	PromiseTime *time.Time     `json:"promise_time,omitempty"`
	Features    map[string]any `json:"features,omitempty"` // pre-computed feature payload merged into the store
}

// TrajectoryPoint is a raw GPS ping of a courier.
type TrajectoryPoint struct {
	CourierID string    `json:"courier_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	TS        time.Time `json:"ts"`
}
