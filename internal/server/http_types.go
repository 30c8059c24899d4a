package server

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// TaskCreatedResponse is returned by POST /api/tasks.
type TaskCreatedResponse struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
}

// TaskListResponse is returned by GET /api/tasks. Results are omitted from listings.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
