package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/okian/slarisk/internal/domain/model"
)

// EarthRadiusKM is the mean earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0088

// TrajectoryConfig is the parametric promise used for records synthesized from trajectories:
// promise = start + BaseMinutes + PaceMinutesPerKM * distance.
type TrajectoryConfig struct {
	BaseMinutes      float64
	PaceMinutesPerKM float64
}

// DefaultTrajectoryConfig returns a 30 minute allowance plus 5 minutes per kilometre.
func DefaultTrajectoryConfig() TrajectoryConfig {
	return TrajectoryConfig{BaseMinutes: 30, PaceMinutesPerKM: 5}
}

// TrajectoryReport counts what happened to the points of a trajectory run.
type TrajectoryReport struct {
	Points  int `json:"points"`
	Groups  int `json:"groups"`
	Records int `json:"records"`
	Dropped int `json:"dropped"` // points without a courier id
	Short   int `json:"short"`   // groups with fewer than two points
}

// Haversine returns the great-circle distance between two coordinates in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKM * math.Asin(math.Min(1, math.Sqrt(a)))
}

type courierDay struct {
	courier string
	day     string
}

// FromTrajectories synthesizes one record per (courier, UTC day) from GPS points.
// The first point is the accept time, the last the delivery time, and the distance is
// the sum of haversine legs between consecutive points. Records are marked Synthetic.
func FromTrajectories(points []model.TrajectoryPoint, cfg TrajectoryConfig) ([]model.TaskRecord, TrajectoryReport) {
	rep := TrajectoryReport{Points: len(points)}
	groups := make(map[courierDay][]model.TrajectoryPoint)
	for _, p := range points {
		if p.CourierID == "" {
			rep.Dropped++
			continue
		}
		k := courierDay{courier: p.CourierID, day: p.TS.UTC().Format(time.DateOnly)}
		groups[k] = append(groups[k], p)
	}
	rep.Groups = len(groups)

	out := make([]model.TaskRecord, 0, len(groups))
	for k, pts := range groups {
		if len(pts) < 2 {
			rep.Short++
			continue
		}
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].TS.Before(pts[j].TS) })
		var km float64
		for i := 1; i < len(pts); i++ {
			km += Haversine(pts[i-1].Lat, pts[i-1].Lon, pts[i].Lat, pts[i].Lon)
		}
		start, end := pts[0].TS, pts[len(pts)-1].TS
		allowance := time.Duration((cfg.BaseMinutes + cfg.PaceMinutesPerKM*km) * float64(time.Minute))
		promise := start.Add(allowance)
		out = append(out, model.TaskRecord{
			TaskID:     k.courier + "-" + k.day,
			CourierID:  k.courier,
			DistanceKM: &km,
			Assigned:   &start,
			Delivered:  &end,
			Promise:    &promise,
			Synthetic:  true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	rep.Records = len(out)
	return out, rep
}
