package training

import (
	"errors"
	"time"

	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/labels"
	"github.com/okian/slarisk/internal/domain/model"
)

// Row is one training example.
type Row struct {
	TaskID string
	Vector features.Vector
	Label  int
	TS     time.Time
}

// RowReport counts records excluded while building rows.
type RowReport struct {
	Records    int `json:"records"`
	Rows       int `json:"rows"`
	Incomplete int `json:"incomplete"`  // no start or delivered time
	BadLabels  int `json:"bad_labels"`  // end before start or unusable promise
	Positives  int `json:"positives"`
	Synthetic  int `json:"synthetic"`
}

// BuildRows extracts features and labels from finalized records. Records that cannot be
// labeled are excluded and counted, never relabeled. tier selects the SLA allowance for
// records without a promise time; empty means the generator default.
func BuildRows(records []model.TaskRecord, ex *features.Extractor, gen *labels.Generator, tier string) ([]Row, RowReport, error) {
	rep := RowReport{Records: len(records)}
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		l, err := gen.ForTask(r, tier)
		switch {
		case errors.Is(err, labels.ErrIncomplete):
			rep.Incomplete++
			continue
		case errors.Is(err, labels.ErrEndBeforeStart):
			rep.BadLabels++
			continue
		case err != nil:
			return nil, rep, err
		}
		start, _ := r.Start()
		rows = append(rows, Row{TaskID: r.TaskID, Vector: ex.Extract(r), Label: l, TS: start})
		if l == labels.Breach {
			rep.Positives++
		}
		if r.Synthetic {
			rep.Synthetic++
		}
	}
	rep.Rows = len(rows)
	return rows, rep, nil
}
