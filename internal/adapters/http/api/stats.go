package api

import (
	"net/http"

	"github.com/okian/slarisk/pkg/logger"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	logger        logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, l logger.Logger) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, logger: l}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats(r.Context()))
}

// HandleRiskSummary handles GET /stats/risk requests: band distribution and
// risk exposure over the validation predictions.
func (h *StatsHandler) HandleRiskSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.risk_summary"
	sum, err := h.statsProvider.RiskSummary(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
