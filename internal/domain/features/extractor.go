package features

import (
	"math"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
)

// Canonical feature names.
const (
	HourOfDay   = "hour_of_day"
	DayOfWeek   = "day_of_week"
	IsWeekend   = "is_weekend"
	HourSin     = "hour_sin"
	HourCos     = "hour_cos"
	LogDistance = "log_distance"
	Weather     = "weather"
	VehicleType = "vehicle_type"
	City        = "city"
)

// TaskSchema is the canonical schema produced by the Extractor.
var TaskSchema = Schema{ //nolint:gochecknoglobals // immutable schema
	{Name: HourOfDay, Kind: Numeric},
	{Name: DayOfWeek, Kind: Numeric},
	{Name: IsWeekend, Kind: Numeric},
	{Name: HourSin, Kind: Numeric},
	{Name: HourCos, Kind: Numeric},
	{Name: LogDistance, Kind: Numeric},
	{Name: Weather, Kind: Categorical},
	{Name: VehicleType, Kind: Categorical},
	{Name: City, Kind: Categorical},
}

// Extractor derives a feature vector from a task record. It holds no state
// besides its options and is safe for concurrent use.
type Extractor struct {
	loc *time.Location
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLocation computes calendar features in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{loc: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema of the vectors produced by Extract.
func (e *Extractor) Schema() Schema {
	return TaskSchema
}

// Extract builds the feature vector of r. Temporal features are omitted when r
// has neither an assigned nor a created time; distance is omitted when unknown.
func (e *Extractor) Extract(r model.TaskRecord) Vector {
	v := make(Vector, len(TaskSchema))
	if start, ok := r.Start(); ok {
		e.temporal(v, start)
	}
	if r.DistanceKM != nil && *r.DistanceKM >= 0 && !math.IsInf(*r.DistanceKM, 0) {
		v[LogDistance] = Num(math.Log1p(*r.DistanceKM))
	}
	if r.Weather != "" {
		v[Weather] = Cat(r.Weather)
	}
	if r.VehicleType != "" {
		v[VehicleType] = Cat(r.VehicleType)
	}
	if r.City != "" {
		v[City] = Cat(r.City)
	}
	return v
}

// Temporal returns only the calendar features of ts.
func (e *Extractor) Temporal(ts time.Time) Vector {
	v := make(Vector, 5)
	e.temporal(v, ts)
	return v
}

func (e *Extractor) temporal(v Vector, ts time.Time) {
	local := ts.In(e.loc)
	hour := local.Hour()
	dow := (int(local.Weekday()) + 6) % 7 // Monday = 0

	v[HourOfDay] = Num(float64(hour))
	v[DayOfWeek] = Num(float64(dow))
	if dow >= 5 {
		v[IsWeekend] = Num(1)
	} else {
		v[IsWeekend] = Num(0)
	}
	sin, cos := CyclicHour(hour)
	v[HourSin] = Num(sin)
	v[HourCos] = Num(cos)
}

// CyclicHour maps an hour of day onto the unit circle.
func CyclicHour(hour int) (sin, cos float64) {
	angle := 2 * math.Pi * float64(hour) / 24
	return math.Sin(angle), math.Cos(angle)
}
