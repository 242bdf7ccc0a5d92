package api

import (
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/slarisk/internal/app"
	"github.com/okian/slarisk/pkg/logger"
)

const (
	defaultDecisionsLimit = 50
	maxDecisionsLimit     = 1_000
)

// SimulateHandler serves cost simulation and the recent decision log.
type SimulateHandler struct {
	deps   SimulateDependencies
	logger logger.Logger
}

// NewSimulateHandler creates a new simulate handler.
func NewSimulateHandler(deps SimulateDependencies, l logger.Logger) *SimulateHandler {
	return &SimulateHandler{deps: deps, logger: l}
}

// HandleSimulate handles POST /simulate requests.
func (h *SimulateHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulate"
	var req service.SimulationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	report, err := h.deps.Simulate(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleDecisions handles GET /decisions?limit=N requests, newest first.
func (h *SimulateHandler) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_decisions"
	n := defaultDecisionsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxDecisionsLimit {
			writeError(r.Context(), w, h.logger,
				WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", maxDecisionsLimit)))
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, h.deps.RecentDecisions(n))
}
