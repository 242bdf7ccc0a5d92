package model

import (
	"fmt"
	"time"
)

// TaskRecord is the canonical per-task record built by the aggregator.
// Milestones are nil until observed.
type TaskRecord struct {
	TaskID      string     `json:"task_id"`
	CourierID   string     `json:"courier_id,omitempty"`
	City        string     `json:"city,omitempty"`
	Weather     string     `json:"weather,omitempty"`
	VehicleType string     `json:"vehicle_type,omitempty"`
	DistanceKM  *float64   `json:"distance_km,omitempty"`
	Created     *time.Time `json:"created,omitempty"`
	Assigned    *time.Time `json:"assigned,omitempty"`
	PickedUp    *time.Time `json:"picked_up,omitempty"`
	Delivered   *time.Time `json:"delivered,omitempty"`
	Promise     *time.Time `json:"promise,omitempty"`

	// Synthetic marks records reconstructed from trajectories rather than observed milestones.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Milestone returns the slot for event type t, or nil for unknown types.
func (r *TaskRecord) Milestone(t EventType) **time.Time {
	switch t {
	case EventTaskCreated:
		return &r.Created
	case EventCourierAssigned:
		return &r.Assigned
	case EventPickup:
		return &r.PickedUp
	case EventDelivered:
		return &r.Delivered
	}
	return nil
}

// Finalized reports whether the delivered milestone was observed.
func (r *TaskRecord) Finalized() bool {
	return r.Delivered != nil
}

// Start returns the reference start of the task: assigned, else created.
func (r *TaskRecord) Start() (time.Time, bool) {
	switch {
	case r.Assigned != nil:
		return *r.Assigned, true
	case r.Created != nil:
		return *r.Created, true
	}
	return time.Time{}, false
}

// Validate checks that present milestones are non-decreasing in the order
// created, assigned, picked up, delivered.
func (r *TaskRecord) Validate() error {
	names := [...]string{"created", "assigned", "picked_up", "delivered"}
	stamps := [...]*time.Time{r.Created, r.Assigned, r.PickedUp, r.Delivered}
	var (
		prev     *time.Time
		prevName string
	)
	for i, ts := range stamps {
		if ts == nil {
			continue
		}
		if prev != nil && ts.Before(*prev) {
			return fmt.Errorf("%w: task %s %s %s before %s %s", ErrMilestoneOrder,
				r.TaskID, names[i], ts.Format(time.RFC3339), prevName, prev.Format(time.RFC3339))
		}
		prev, prevName = ts, names[i]
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *TaskRecord) Clone() TaskRecord {
	c := *r
	c.DistanceKM = clonePtr(r.DistanceKM)
	c.Created = clonePtr(r.Created)
	c.Assigned = clonePtr(r.Assigned)
	c.PickedUp = clonePtr(r.PickedUp)
	c.Delivered = clonePtr(r.Delivered)
	c.Promise = clonePtr(r.Promise)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
