package api

import (
	"net/http"

	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/task"
)

// CreateTask handles POST /api/tasks. The task has no attached work and
// completes after a duration estimated from its description.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := h.tasks.AddTask(req.Description, task.ParsePriority(req.Priority))
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskIDResponse{ID: id})
}

// ListTasks handles GET /api/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.tasks.List())
}

// QueueStatus handles GET /api/tasks/status.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, newQueueStatusResponse(h.tasks.GetStatus()))
}

// GetTask handles GET /api/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, ok := h.tasks.Get(id)
	if !ok {
		HandleAPIError(w, r, task.ErrTaskNotFound, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if !h.tasks.Clear(id) {
		HandleAPIError(w, r, task.ErrTaskNotFound, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResubmitTask handles POST /api/tasks/{id}/resubmit. Only terminally
// failed tasks can be resubmitted.
func (h *Handler) ResubmitTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	newID, err := h.tasks.Resubmit(id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, TaskIDResponse{ID: newID})
}
