package demodata

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
)

const (
	baseAssignMinutes = 1.0
	baseAssignRange   = 5.0
	basePickupMinutes = 4.0
	basePickupRange   = 10.0
	basePaceMinPerKM  = 6.0
	paceNoiseMinutes  = 4.0
	minTravelMinutes  = 2.0
	meanExtraKM       = 2.5
	minDistanceKM     = 0.5
	maxDistanceKM     = 15.0
	rushPaceFactor    = 1.25
	kmPerDegree       = 111.0
	ctxCheckEvery     = 1_000
)

type weighted struct {
	name   string
	weight float64
	factor float64 // pace multiplier
}

type city struct {
	name     string
	lat, lon float64
}

var ( //nolint:gochecknoglobals // static generator tables
	cities = []city{
		{"shanghai", 31.2304, 121.4737},
		{"hangzhou", 30.2741, 120.1551},
		{"chongqing", 29.5630, 106.5516},
		{"yantai", 37.4638, 121.4479},
		{"jilin", 43.8378, 126.5496},
	}
	weathers = []weighted{
		{"Sunny", 0.50, 1.00},
		{"Cloudy", 0.25, 1.05},
		{"Rain", 0.18, 1.35},
		{"Snow", 0.07, 1.60},
	}
	vehicles = []weighted{
		{"bike", 0.50, 1.00},
		{"e-bike", 0.35, 0.90},
		{"car", 0.15, 0.80},
	}
	// Order volume by hour of day, peaking at lunch and dinner.
	hourWeights = []float64{
		0.2, 0.1, 0.1, 0.1, 0.1, 0.2, 0.5, 1.0, 1.5, 1.5, 2.0, 3.5,
		4.0, 3.0, 1.5, 1.5, 2.0, 3.5, 4.0, 3.0, 2.0, 1.5, 1.0, 0.5,
	}
)

func rush(hour int) bool {
	return (hour >= 11 && hour <= 13) || (hour >= 17 && hour <= 19)
}

// generator owns the seeded source shared by the random draws and the ids.
type generator struct {
	cfg Config
	src *rand.ChaCha8
	r   *rand.Rand
}

func newGenerator(cfg Config) *generator {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], cfg.Seed)
	src := rand.NewChaCha8(seed)
	return &generator{cfg: cfg, src: src, r: rand.New(src)}
}

func (g *generator) id() string {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		// ChaCha8 reads never fail.
		panic(err)
	}
	return id.String()
}

func (g *generator) pick(table []weighted) weighted {
	var total float64
	for _, w := range table {
		total += w.weight
	}
	x := g.r.Float64() * total
	for _, w := range table {
		if x < w.weight {
			return w
		}
		x -= w.weight
	}
	return table[len(table)-1]
}

func (g *generator) hour() int {
	var total float64
	for _, w := range hourWeights {
		total += w
	}
	x := g.r.Float64() * total
	for h, w := range hourWeights {
		if x < w {
			return h
		}
		x -= w
	}
	return len(hourWeights) - 1
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// task draws one delivered task created on day (offset from Start).
func (g *generator) task(day int) model.TaskRecord {
	c := cities[g.r.IntN(len(cities))]
	h := g.hour()
	weather := g.pick(weathers)
	vehicle := g.pick(vehicles)
	km := math.Min(maxDistanceKM, minDistanceKM+g.r.ExpFloat64()*meanExtraKM)
	km = math.Round(km*100) / 100

	created := g.cfg.Start.AddDate(0, 0, day).Add(time.Duration(h)*time.Hour + time.Duration(g.r.IntN(60))*time.Minute)
	assigned := created.Add(minutes(baseAssignMinutes + g.r.Float64()*baseAssignRange))
	picked := assigned.Add(minutes(basePickupMinutes + g.r.Float64()*basePickupRange))

	pace := basePaceMinPerKM * weather.factor * vehicle.factor
	if rush(h) {
		pace *= rushPaceFactor
	}
	travel := math.Max(minTravelMinutes, km*pace+g.r.NormFloat64()*paceNoiseMinutes)
	delivered := picked.Add(minutes(travel))
	promise := created.Add(minutes(g.cfg.PromiseMinutes))

	return model.TaskRecord{
		TaskID:      g.id(),
		CourierID:   fmt.Sprintf("courier-%03d", g.r.IntN(g.cfg.Couriers)),
		City:        c.name,
		Weather:     weather.name,
		VehicleType: vehicle.name,
		DistanceKM:  &km,
		Created:     &created,
		Assigned:    &assigned,
		PickedUp:    &picked,
		Delivered:   &delivered,
		Promise:     &promise,
	}
}

// events splits a task into its four milestone events. Static attributes ride
// on the creation event only.
func (g *generator) events(rec model.TaskRecord) []model.Event {
	mk := func(t model.EventType, ts *time.Time) model.Event {
		return model.Event{EventID: g.id(), TaskID: rec.TaskID, CourierID: rec.CourierID, Type: t, TS: *ts}
	}
	created := mk(model.EventTaskCreated, rec.Created)
	created.City = rec.City
	created.Weather = rec.Weather
	created.VehicleType = rec.VehicleType
	created.DistanceKM = rec.DistanceKM
	created.PromiseTime = rec.Promise
	return []model.Event{
		created,
		mk(model.EventCourierAssigned, rec.Assigned),
		mk(model.EventPickup, rec.PickedUp),
		mk(model.EventDelivered, rec.Delivered),
	}
}

// route draws one working session of GPS pings for a trajectory-only courier.
func (g *generator) route(courier string, day int) []model.TrajectoryPoint {
	c := cities[g.r.IntN(len(cities))]
	ts := g.cfg.Start.AddDate(0, 0, day).Add(time.Duration(8+g.r.IntN(10)) * time.Hour)
	lat := c.lat + (g.r.Float64()-0.5)*0.1
	lon := c.lon + (g.r.Float64()-0.5)*0.1
	n := 5 + g.r.IntN(10)

	out := make([]model.TrajectoryPoint, 0, n)
	for i := range n {
		if i > 0 {
			step := 0.3 + g.r.Float64()*0.9
			heading := g.r.Float64() * 2 * math.Pi
			lat += step * math.Cos(heading) / kmPerDegree
			lon += step * math.Sin(heading) / (kmPerDegree * math.Cos(lat*math.Pi/180))
			ts = ts.Add(minutes(step * (3 + g.r.Float64()*6)))
		}
		out = append(out, model.TrajectoryPoint{CourierID: courier, Lat: lat, Lon: lon, TS: ts})
	}
	return out
}

// Generate builds a deterministic dataset from cfg. Stream tasks are created
// on the day after the history window.
func Generate(ctx context.Context, cfg Config, opts ...Option) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := applyOptions(opts).logger
	log.Info(ctx, "generating demo data",
		logger.Int("history_tasks", cfg.HistoryTasks),
		logger.Int("stream_tasks", cfg.StreamTasks),
		logger.Int("trajectory_couriers", cfg.TrajectoryCouriers),
		logger.Int("days", cfg.Days),
	)
	g := newGenerator(cfg)
	ds := &Dataset{Tasks: make([]model.TaskRecord, 0, cfg.HistoryTasks)}

	for i := range cfg.HistoryTasks {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during task generation: %w", err)
			}
		}
		rec := g.task(g.r.IntN(cfg.Days))
		if g.r.Float64() < cfg.MissingPromiseRate {
			rec.Promise = nil
		}
		ds.Tasks = append(ds.Tasks, rec)
	}
	slices.SortStableFunc(ds.Tasks, func(a, b model.TaskRecord) int { return a.Created.Compare(*b.Created) })

	for range cfg.StreamTasks {
		ds.Stream = append(ds.Stream, g.events(g.task(cfg.Days))...)
	}
	slices.SortStableFunc(ds.Stream, func(a, b model.Event) int { return a.TS.Compare(b.TS) })

	for c := range cfg.TrajectoryCouriers {
		courier := fmt.Sprintf("traj-%03d", c)
		for day := range cfg.Days {
			ds.Trajectories = append(ds.Trajectories, g.route(courier, day)...)
		}
	}

	log.Info(ctx, "generated demo data",
		logger.Int("tasks", len(ds.Tasks)),
		logger.Int("stream_events", len(ds.Stream)),
		logger.Int("trajectory_points", len(ds.Trajectories)),
	)
	return ds, nil
}
