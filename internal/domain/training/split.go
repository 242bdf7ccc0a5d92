package training

import (
	"fmt"
	"sort"
)

// Split orders rows by timestamp and returns the earliest fraction as train and
// the rest as validation, so no validation row precedes a training row.
func Split(rows []Row, fraction float64) (train, validation []Row, err error) {
	if !(fraction > 0 && fraction < 1) {
		return nil, nil, fmt.Errorf("%w: fraction %v", ErrInvalidConfig, fraction)
	}
	ordered := append([]Row(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TS.Before(ordered[j].TS) })

	cut := int(float64(len(ordered)) * fraction)
	if cut == 0 || cut == len(ordered) {
		return nil, nil, fmt.Errorf("%w: %d rows split at %v", ErrInsufficientData, len(ordered), fraction)
	}
	return ordered[:cut], ordered[cut:], nil
}

// PositiveWeight returns negatives / positives of rows.
func PositiveWeight(rows []Row) (float64, error) {
	var pos, neg int
	for _, r := range rows {
		if r.Label == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 {
		return 0, fmt.Errorf("%w: %d training rows", ErrNoPositives, len(rows))
	}
	if neg == 0 {
		return 1, nil
	}
	return float64(neg) / float64(pos), nil
}
