// Package aggregate collapses raw delivery events, or raw courier trajectories,
// into one canonical record per task.
package aggregate

import (
	"sort"

	"github.com/okian/slarisk/internal/domain/model"
)

// Report counts what happened to the events of an aggregation run.
type Report struct {
	Events       int `json:"events"`
	Tasks        int `json:"tasks"`
	Dropped      int `json:"dropped"`       // events without a task id
	UnknownTypes int `json:"unknown_types"` // events with a non-canonical type
	Duplicates   int `json:"duplicates"`    // repeated milestones, ignored
	Invalid      int `json:"invalid"`       // records whose milestones are out of order
}

// Aggregate groups events by task id and returns one record per task, sorted by task id.
// Events are ordered by timestamp first, so the earliest observation of a milestone wins
// whatever the input order. Records with out-of-order milestones are excluded and counted.
func Aggregate(events []model.Event) ([]model.TaskRecord, Report) {
	rep := Report{Events: len(events)}

	ordered := make([]model.Event, 0, len(events))
	for _, ev := range events {
		switch {
		case ev.TaskID == "":
			rep.Dropped++
		case !ev.Type.Valid():
			rep.UnknownTypes++
		default:
			ordered = append(ordered, ev)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TS.Before(ordered[j].TS) })

	byTask := make(map[string]*model.TaskRecord)
	for _, ev := range ordered {
		rec, ok := byTask[ev.TaskID]
		if !ok {
			rec = &model.TaskRecord{TaskID: ev.TaskID}
			byTask[ev.TaskID] = rec
		}
		if !Apply(rec, ev) {
			rep.Duplicates++
		}
	}

	out := make([]model.TaskRecord, 0, len(byTask))
	for _, rec := range byTask {
		if rec.Validate() != nil {
			rep.Invalid++
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	rep.Tasks = len(out)
	return out, rep
}

// Apply folds ev into rec. The first observation of a milestone is kept and static
// attributes are taken from the first event carrying them. It returns false when the
// milestone was already set, in which case only missing static attributes are filled.
func Apply(rec *model.TaskRecord, ev model.Event) bool {
	fillStatic(rec, ev)
	slot := rec.Milestone(ev.Type)
	if slot == nil || *slot != nil {
		return false
	}
	ts := ev.TS
	*slot = &ts
	return true
}

func fillStatic(rec *model.TaskRecord, ev model.Event) {
	if rec.CourierID == "" {
		rec.CourierID = ev.CourierID
	}
	if rec.City == "" {
		rec.City = ev.City
	}
	if rec.Weather == "" {
		rec.Weather = ev.Weather
	}
	if rec.VehicleType == "" {
		rec.VehicleType = ev.VehicleType
	}
	if rec.DistanceKM == nil && ev.DistanceKM != nil {
		d := *ev.DistanceKM
		rec.DistanceKM = &d
	}
	if rec.Promise == nil && ev.PromiseTime != nil {
		p := *ev.PromiseTime
		rec.Promise = &p
	}
}
