package api

import (
	"fmt"
	"net/http"

	"github.com/okian/slarisk/pkg/logger"
)

type scoreRequest struct {
	Items []map[string]any `json:"items" validate:"required,min=1"`
}

// scoreResult carries either a probability or the reason the item failed.
type scoreResult struct {
	Probability *float64 `json:"probability,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type scoreResponse struct {
	Results []scoreResult `json:"results"`
}

// ScoreHandler handles batch scoring requests.
type ScoreHandler struct {
	deps     ScoreDependencies
	maxBatch int
	logger   logger.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, maxBatch int, l logger.Logger) *ScoreHandler {
	return &ScoreHandler{deps: deps, maxBatch: maxBatch, logger: l}
}

// HandleScore handles POST /score requests. Results keep the order of items;
// a malformed item fails alone.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Items) > h.maxBatch {
		writeError(r.Context(), w, h.logger,
			WrapKind(op, ErrBadRequest, fmt.Errorf("batch of %d exceeds limit %d", len(req.Items), h.maxBatch)))
		return
	}

	results, err := h.deps.Score(r.Context(), req.Items)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	out := scoreResponse{Results: make([]scoreResult, len(results))}
	for i, res := range results {
		if res.Err != nil {
			out.Results[i].Error = res.Err.Error()
			continue
		}
		p := res.Probability
		out.Results[i].Probability = &p
	}
	writeJSON(w, http.StatusOK, out)
}
