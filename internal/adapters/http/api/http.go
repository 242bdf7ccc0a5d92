// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/internal/domain/costsim"
	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/internal/domain/inference"
	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
)

const (
	defaultMaxBatch = 1_000
	maxBodyBytes    = 4 << 20
)

var validate = validator.New() //nolint:gochecknoglobals // validators are safe for concurrent use

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	ScoreDependencies
	TaskDependencies
	SimulateDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	scoreHandler    *ScoreHandler
	tasksHandler    *TasksHandler
	simulateHandler *SimulateHandler

	limiter *rateLimiter
	logger  logger.Logger
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	rps      float64
	maxBatch int
	logger   logger.Logger
}

// WithRateLimit limits POST /events and POST /score to rps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(o *serverOptions) {
		if rps >= 0 {
			o.rps = rps
		}
	}
}

// WithMaxBatch caps the number of items accepted by POST /score.
func WithMaxBatch(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBatch = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{maxBatch: defaultMaxBatch, logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps, o.logger),
		eventsHandler:   NewEventsHandler(deps, o.logger),
		scoreHandler:    NewScoreHandler(deps, o.maxBatch, o.logger),
		tasksHandler:    NewTasksHandler(deps, o.logger),
		simulateHandler: NewSimulateHandler(deps, o.logger),
		limiter:         newRateLimiter(o.rps),
		logger:          o.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /stats/risk", MetricsMiddleware(s.statsHandler.HandleRiskSummary, "stats_risk"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.limiter.wrap(s.eventsHandler.HandlePostEvent), "events"))
	mux.HandleFunc("POST /score", MetricsMiddleware(s.limiter.wrap(s.scoreHandler.HandleScore), "score"))
	mux.HandleFunc("GET /tasks/{id}/features", MetricsMiddleware(s.tasksHandler.HandleGetFeatures, "task_features"))
	mux.HandleFunc("GET /tasks/{id}/risk", MetricsMiddleware(s.tasksHandler.HandleGetRisk, "task_risk"))
	mux.HandleFunc("POST /simulate", MetricsMiddleware(s.simulateHandler.HandleSimulate, "simulate"))
	mux.HandleFunc("GET /decisions", MetricsMiddleware(s.simulateHandler.HandleDecisions, "decisions"))
}

// Interfaces consumed by individual handlers.
type (
	// EventDependencies accepts raw events for asynchronous processing.
	EventDependencies interface {
		Ingest(ctx context.Context, ev model.Event) error
	}

	// ScoreDependencies scores raw feature maps.
	ScoreDependencies interface {
		Score(ctx context.Context, items []map[string]any) ([]inference.BatchResult, error)
	}

	// TaskDependencies reads and scores stored task features.
	TaskDependencies interface {
		Features(ctx context.Context, taskID string) (features.Vector, error)
		Risk(ctx context.Context, taskID string) (model.DecisionRecord, error)
	}

	// SimulateDependencies prices thresholds and exposes recent decisions.
	SimulateDependencies interface {
		Simulate(ctx context.Context, req service.SimulationRequest) (*service.SimulationReport, error)
		RecentDecisions(limit int) []model.DecisionRecord
	}

	// StatsProvider defines the interface for getting service statistics.
	StatsProvider interface {
		GetStats(ctx context.Context) map[string]any
		RiskSummary(ctx context.Context) (costsim.Summary, error)
	}
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err *KindError) {
	info := infoOf(err)
	if info.status >= http.StatusInternalServerError && info.status != http.StatusServiceUnavailable {
		l.Error(ctx, "request failed", logger.String("op", err.Op), logger.Error(err))
	}
	writeJSON(w, info.status, errorResponse{Code: info.code, Message: err.Error()})
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
