package features

import (
	"fmt"
	"sort"
)

// UnknownCode is the encoded value of a categorical label not seen during fitting.
const UnknownCode = -1

// Encoder maps categorical labels to integer codes, per feature.
// Codes are the index of the label in the sorted list of fitted labels.
type Encoder struct {
	Levels map[string][]string `json:"levels"`

	index map[string]map[string]int
}

// FitEncoder learns the distinct labels of every categorical field of schema from vectors.
func FitEncoder(schema Schema, vectors []Vector) *Encoder {
	seen := make(map[string]map[string]struct{})
	for _, f := range schema {
		if f.Kind == Categorical {
			seen[f.Name] = make(map[string]struct{})
		}
	}
	for _, v := range vectors {
		for name, labels := range seen {
			if val, ok := v[name]; ok && val.Kind == Categorical {
				labels[val.Cat] = struct{}{}
			}
		}
	}
	levels := make(map[string][]string, len(seen))
	for name, labels := range seen {
		list := make([]string, 0, len(labels))
		for l := range labels {
			list = append(list, l)
		}
		sort.Strings(list)
		levels[name] = list
	}
	return NewEncoder(levels)
}

// NewEncoder builds an Encoder from persisted levels.
func NewEncoder(levels map[string][]string) *Encoder {
	e := &Encoder{Levels: levels, index: make(map[string]map[string]int, len(levels))}
	for name, list := range levels {
		idx := make(map[string]int, len(list))
		for i, l := range list {
			idx[l] = i
		}
		e.index[name] = idx
	}
	return e
}

// Code returns the code of label for feature, or UnknownCode.
func (e *Encoder) Code(feature, label string) float64 {
	if idx, ok := e.index[feature]; ok {
		if c, ok := idx[label]; ok {
			return float64(c)
		}
	}
	return UnknownCode
}

// Cardinality returns the number of fitted labels for feature.
func (e *Encoder) Cardinality(feature string) int {
	return len(e.Levels[feature])
}

// Encode converts v into a dense row in schema order. Missing fields are zero-filled,
// undeclared keys ignored. A categorical string in a numeric slot is an error.
func (e *Encoder) Encode(schema Schema, v Vector) ([]float64, error) {
	row := make([]float64, len(schema))
	for i, f := range schema {
		val, ok := v[f.Name]
		if !ok {
			continue
		}
		switch f.Kind {
		case Numeric:
			if val.Kind != Numeric {
				return nil, fmt.Errorf("%w: %q holds %q", ErrKindMismatch, f.Name, val.Cat)
			}
			row[i] = val.Num
		case Categorical:
			row[i] = e.categorical(f.Name, val)
		}
	}
	return row, nil
}

// categorical encodes a label, or accepts a numeric value as an already encoded code.
func (e *Encoder) categorical(feature string, val Value) float64 {
	if val.Kind == Categorical {
		return e.Code(feature, val.Cat)
	}
	n := e.Cardinality(feature)
	if val.Num == float64(int(val.Num)) && val.Num >= 0 && int(val.Num) < n {
		return val.Num
	}
	return UnknownCode
}
