package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/okian/slarisk/internal/domain/model"
)

var taskHeader = []string{ //nolint:gochecknoglobals // csv header
	"task_id", "courier_id", "city", "weather", "vehicle_type", "distance_km",
	"created_at", "assigned_at", "picked_up_at", "delivered_at", "promise_time",
}

// WriteTasks encodes records as a task table that Reader.Tasks reads back.
func WriteTasks(w io.Writer, records []model.TaskRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(taskHeader); err != nil {
		return err
	}
	for _, t := range records {
		row := []string{
			t.TaskID, t.CourierID, t.City, t.Weather, t.VehicleType, formatFloat(t.DistanceKM),
			formatTime(t.Created), formatTime(t.Assigned), formatTime(t.PickedUp),
			formatTime(t.Delivered), formatTime(t.Promise),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEvents encodes one JSON event per line.
func WriteEvents(w io.Writer, events []model.Event) error {
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encode event %s: %w", events[i].EventID, err)
		}
	}
	return nil
}

// WriteTrajectories encodes GPS pings as courier_id,lat,lon,ts.
func WriteTrajectories(w io.Writer, points []model.TrajectoryPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"courier_id", "lat", "lon", "ts"}); err != nil {
		return err
	}
	for _, p := range points {
		ts := p.TS
		row := []string{
			p.CourierID,
			strconv.FormatFloat(p.Lat, 'f', 6, 64),
			strconv.FormatFloat(p.Lon, 'f', 6, 64),
			formatTime(&ts),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
