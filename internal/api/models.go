package api

import (
	"github.com/phrazzld/fesoni/internal/task"
)

// CreateTaskRequest is the payload of POST /api/tasks.
type CreateTaskRequest struct {
	Description string `json:"description" validate:"required,max=200"`
	Priority    string `json:"priority"    validate:"omitempty,oneof=low normal high"`
}

// TaskIDResponse carries the id of a newly created task.
type TaskIDResponse struct {
	ID string `json:"id"`
}

// QueueStatusResponse is the aggregate queue status with its total.
type QueueStatusResponse struct {
	task.QueueStatus
	Total int `json:"total"`
}

// ShoppingRequest is the payload of POST /api/shopping.
type ShoppingRequest struct {
	Input    string `json:"input"    validate:"required,max=500"`
	UserID   string `json:"user_id"  validate:"omitempty,max=64"`
	Enhanced bool   `json:"enhanced"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func newQueueStatusResponse(s task.QueueStatus) QueueStatusResponse {
	return QueueStatusResponse{QueueStatus: s, Total: s.Total()}
}
