// Package dataset reads and writes the upstream delivery datasets: CSV task
// tables, JSONL raw milestone events and CSV courier trajectory points.
// Malformed rows are counted and skipped; structural problems such as a
// missing required column fail the whole file.
package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/slarisk/internal/domain/model"
)

// Format identifies a dataset file layout.
type Format string

// Supported formats.
const (
	FormatTasks        Format = "tasks"
	FormatEvents       Format = "events"
	FormatTrajectories Format = "trajectories"
)

// Report counts what a reader saw.
type Report struct {
	Rows      int `json:"rows"`
	Malformed int `json:"malformed"`
}

// Add accumulates o into r.
func (r *Report) Add(o Report) {
	r.Rows += o.Rows
	r.Malformed += o.Malformed
}

// Reader decodes dataset streams. The zero value is not usable; use NewReader.
type Reader struct {
	loc *time.Location
}

// Option configures a Reader.
type Option func(*Reader)

// WithLocation sets the zone for timestamps that carry no offset. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(r *Reader) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewReader returns a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{loc: time.UTC}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tasks decodes a task table. task_id is required; every other column is optional.
func (r *Reader) Tasks(ctx context.Context, src io.Reader) ([]model.TaskRecord, Report, error) {
	var rep Report
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, rep, fmt.Errorf("read header: %w", err)
	}
	cols := newColumns(header)
	idCol, err := cols.require("task_id", "order_id")
	if err != nil {
		return nil, rep, err
	}
	var (
		courier   = cols.index("courier_id")
		city      = cols.index("city")
		weather   = cols.index("weather")
		vehicle   = cols.index("vehicle_type")
		distance  = cols.index("distance_km", "distance")
		created   = cols.index("created_at", "created_time")
		assigned  = cols.index("assigned_at", "accept_time")
		pickedUp  = cols.index("picked_up_at", "pickup_time")
		delivered = cols.index("delivered_at", "delivery_time")
		promise   = cols.index("promise_time", "promised_at")
	)

	var out []model.TaskRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rep.Malformed++
			continue
		}
		t := model.TaskRecord{
			TaskID:      cell(rec, idCol),
			CourierID:   cell(rec, courier),
			City:        cell(rec, city),
			Weather:     cell(rec, weather),
			VehicleType: cell(rec, vehicle),
		}
		if t.TaskID == "" {
			rep.Malformed++
			continue
		}
		bad := false
		if t.DistanceKM, err = optFloat(cell(rec, distance)); err != nil {
			bad = true
		}
		for _, m := range []struct {
			dst **time.Time
			col int
		}{
			{&t.Created, created}, {&t.Assigned, assigned}, {&t.PickedUp, pickedUp},
			{&t.Delivered, delivered}, {&t.Promise, promise},
		} {
			if *m.dst, err = optTime(cell(rec, m.col), r.loc); err != nil {
				bad = true
			}
		}
		if bad {
			rep.Malformed++
			continue
		}
		rep.Rows++
		out = append(out, t)
	}
	return out, rep, nil
}

// Events decodes one JSON event per line. Blank lines are ignored.
func (r *Reader) Events(ctx context.Context, src io.Reader) ([]model.Event, Report, error) {
	var (
		rep Report
		out []model.Event
	)
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			rep.Malformed++
			continue
		}
		rep.Rows++
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, rep, fmt.Errorf("scan events: %w", err)
	}
	return out, rep, nil
}

// Trajectories decodes GPS pings with courier_id, lat, lon/lng and ts/time columns.
func (r *Reader) Trajectories(ctx context.Context, src io.Reader) ([]model.TrajectoryPoint, Report, error) {
	var rep Report
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, rep, fmt.Errorf("read header: %w", err)
	}
	cols := newColumns(header)
	idx := make([]int, 4)
	for i, names := range [][]string{{"courier_id"}, {"lat"}, {"lon", "lng"}, {"ts", "time", "gps_time"}} {
		if idx[i], err = cols.require(names...); err != nil {
			return nil, rep, err
		}
	}

	var out []model.TrajectoryPoint
	for {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rep.Malformed++
			continue
		}
		p, ok := r.point(rec, idx)
		if !ok {
			rep.Malformed++
			continue
		}
		rep.Rows++
		out = append(out, p)
	}
	return out, rep, nil
}

func (r *Reader) point(rec []string, idx []int) (model.TrajectoryPoint, bool) {
	id := cell(rec, idx[0])
	lat, err1 := strconv.ParseFloat(cell(rec, idx[1]), 64)
	lon, err2 := strconv.ParseFloat(cell(rec, idx[2]), 64)
	ts, err3 := parseTime(cell(rec, idx[3]), r.loc)
	if id == "" || err1 != nil || err2 != nil || err3 != nil {
		return model.TrajectoryPoint{}, false
	}
	return model.TrajectoryPoint{CourierID: id, Lat: lat, Lon: lon, TS: ts}, true
}

// Sources lists the files of a training run, by format.
type Sources struct {
	Tasks        []string
	Events       []string
	Trajectories []string
}

// Empty reports whether no file is listed.
func (s Sources) Empty() bool {
	return len(s.Tasks)+len(s.Events)+len(s.Trajectories) == 0
}

// Bundle is everything loaded from a set of sources, in source order.
type Bundle struct {
	Tasks        []model.TaskRecord
	Events       []model.Event
	Trajectories []model.TrajectoryPoint
	Report       Report
}

type sourceFile struct {
	path   string
	format Format
}

// Load reads every source concurrently. The first file error cancels the rest.
func (r *Reader) Load(ctx context.Context, src Sources) (*Bundle, error) {
	type part struct {
		tasks  []model.TaskRecord
		events []model.Event
		points []model.TrajectoryPoint
		rep    Report
	}
	files := make([]sourceFile, 0, len(src.Tasks)+len(src.Events)+len(src.Trajectories))
	for _, p := range src.Tasks {
		files = append(files, sourceFile{p, FormatTasks})
	}
	for _, p := range src.Events {
		files = append(files, sourceFile{p, FormatEvents})
	}
	for _, p := range src.Trajectories {
		files = append(files, sourceFile{p, FormatTrajectories})
	}

	parts := make([]part, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			fh, err := os.Open(f.path)
			if err != nil {
				return fmt.Errorf("open %s: %w", f.path, err)
			}
			defer fh.Close()

			var p part
			switch f.format {
			case FormatTasks:
				p.tasks, p.rep, err = r.Tasks(gctx, fh)
			case FormatEvents:
				p.events, p.rep, err = r.Events(gctx, fh)
			case FormatTrajectories:
				p.points, p.rep, err = r.Trajectories(gctx, fh)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", f.format, filepath.Base(f.path), err)
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &Bundle{}
	for _, p := range parts {
		b.Tasks = append(b.Tasks, p.tasks...)
		b.Events = append(b.Events, p.events...)
		b.Trajectories = append(b.Trajectories, p.points...)
		b.Report.Add(p.rep)
	}
	return b, nil
}

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTasks, FormatEvents, FormatTrajectories:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}
