package api

import (
	"net/http"
	"strings"

	"github.com/okian/slarisk/internal/domain/features"
	"github.com/okian/slarisk/pkg/logger"
)

type featuresResponse struct {
	TaskID   string          `json:"task_id"`
	Features features.Vector `json:"features"`
}

// TasksHandler serves per-task reads of the online feature store.
type TasksHandler struct {
	deps   TaskDependencies
	logger logger.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(deps TaskDependencies, l logger.Logger) *TasksHandler {
	return &TasksHandler{deps: deps, logger: l}
}

// HandleGetFeatures handles GET /tasks/{id}/features requests.
func (h *TasksHandler) HandleGetFeatures(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_features"
	id, ok := taskID(r)
	if !ok {
		writeError(r.Context(), w, h.logger, NewKind(op, ErrBadRequest))
		return
	}
	v, err := h.deps.Features(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, featuresResponse{TaskID: id, Features: v})
}

// HandleGetRisk handles GET /tasks/{id}/risk requests.
func (h *TasksHandler) HandleGetRisk(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_risk"
	id, ok := taskID(r)
	if !ok {
		writeError(r.Context(), w, h.logger, NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.Risk(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func taskID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, id != ""
}
