package artifact

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/okian/slarisk/internal/domain/costsim"
)

var validationHeader = []string{"y_true", "y_prob"} //nolint:gochecknoglobals // csv header

// WriteValidation publishes validation pairs as a y_true,y_prob CSV.
func WriteValidation(path string, pairs []costsim.Pair) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(validationHeader); err != nil {
		return err
	}
	for _, p := range pairs {
		rec := []string{strconv.Itoa(p.Label), strconv.FormatFloat(p.Prob, 'g', -1, 64)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode validation csv: %w", err)
	}
	return publish(path, buf.Bytes())
}

// ReadValidation reads a y_true,y_prob CSV. Columns are located by header name.
func ReadValidation(path string) ([]costsim.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrValidationMissing, path)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: header: %w", ErrInvalidDocument, path, err)
	}
	yi, pi := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "y_true":
			yi = i
		case "y_prob":
			pi = i
		}
	}
	if yi < 0 || pi < 0 {
		return nil, fmt.Errorf("%w: %s: want columns y_true and y_prob", ErrInvalidDocument, path)
	}

	var pairs []costsim.Pair
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", ErrInvalidDocument, path, line, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(rec[yi]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: y_true: %w", ErrInvalidDocument, path, line, err)
		}
		if y != math.Trunc(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w: %s line %d: y_true %v is not a class label", ErrInvalidDocument, path, line, y)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(rec[pi]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: y_prob: %w", ErrInvalidDocument, path, line, err)
		}
		pairs = append(pairs, costsim.Pair{Label: int(y), Prob: p})
	}
	return pairs, nil
}
