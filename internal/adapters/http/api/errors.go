package api

import (
	"errors"
	"net/http"

	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/domain/costsim"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("unavailable")
	ErrInternal     = errors.New("internal error")
)

// KindError tags an error with the operation that failed and an API kind.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns a KindError without a cause.
func NewKind(op string, kind error) *KindError {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind returns a KindError wrapping err.
func WrapKind(op string, kind, err error) *KindError {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// Wrap classifies an upstream error into an API kind.
func Wrap(op string, err error) *KindError {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke
	}
	switch {
	case errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrInvalidSimulation),
		errors.Is(err, costsim.ErrInvalidCost),
		errors.Is(err, costsim.ErrInvalidPair),
		errors.Is(err, costsim.ErrInvalidThreshold),
		errors.Is(err, costsim.ErrInvalidPoints):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, service.ErrTaskNotFound):
		return WrapKind(op, ErrNotFound, err)
	case errors.Is(err, service.ErrBackpressure):
		return WrapKind(op, ErrBackpressure, err)
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrModelUnavailable),
		errors.Is(err, service.ErrNoValidation):
		return WrapKind(op, ErrUnavailable, err)
	}
	return WrapKind(op, ErrInternal, err)
}

type kindInfo struct {
	status int
	code   string
}

var kinds = map[error]kindInfo{ //nolint:gochecknoglobals // static lookup table
	ErrBadRequest:   {http.StatusBadRequest, "bad_request"},
	ErrNotFound:     {http.StatusNotFound, "not_found"},
	ErrBackpressure: {http.StatusTooManyRequests, "backpressure"},
	ErrRateLimited:  {http.StatusTooManyRequests, "rate_limited"},
	ErrUnavailable:  {http.StatusServiceUnavailable, "unavailable"},
	ErrInternal:     {http.StatusInternalServerError, "internal_error"},
}

func infoOf(e *KindError) kindInfo {
	if info, ok := kinds[e.Kind]; ok {
		return info
	}
	return kinds[ErrInternal]
}
