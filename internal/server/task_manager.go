package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/sanonone/pdfdrop/pkg/extract"
	"github.com/sanonone/pdfdrop/pkg/metrics"
)

// TaskStatus defines the possible states of a task.
type TaskStatus string

const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

func (s TaskStatus) finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// Task is one asynchronous extraction. It is the UI handle its drop.Controller delivers to.
type Task struct {
	mu sync.RWMutex

	id              string
	status          TaskStatus
	progressMessage string
	err             string
	errKind         string
	files           int
	createdAt       time.Time
	finishedAt      time.Time
	result          extract.Batch
	cancel          context.CancelFunc
}

// TaskView is a point-in-time copy of a Task, as served over HTTP.
type TaskView struct {
	ID              string        `json:"id"`
	Status          TaskStatus    `json:"status"`
	ProgressMessage string        `json:"progress_message,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	Files           int           `json:"files"`
	CreatedAt       time.Time     `json:"created_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Result          extract.Batch `json:"result,omitempty"`
}

// TaskManager tracks asynchronous tasks, ordered by creation time.
// Finished tasks beyond maxRetained are evicted oldest first; running tasks never are.
type TaskManager struct {
	mu          sync.RWMutex
	tasks       btree.Map[string, *Task]
	maxRetained int
}

// NewTaskManager creates a task manager. maxRetained <= 0 keeps every task.
func NewTaskManager(maxRetained int) *TaskManager {
	return &TaskManager{maxRetained: maxRetained}
}

// NewTask registers a task for a drop of the given number of files.
// cancel is called by Cancel and when the task finishes.
func (tm *TaskManager) NewTask(files int, cancel context.CancelFunc) *Task {
	task := &Task{
		id:        newTaskID(),
		status:    TaskStatusStarted,
		files:     files,
		createdAt: time.Now(),
		cancel:    cancel,
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tasks.Set(task.id, task)
	tm.evictLocked()
	metrics.TasksRetained.Set(float64(tm.tasks.Len()))
	return task
}

// GetTask safely retrieves a task by its ID.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.tasks.Get(id)
}

// Cancel stops a running task. It reports whether the task exists.
func (tm *TaskManager) Cancel(id string) bool {
	task, ok := tm.GetTask(id)
	if !ok {
		return false
	}
	task.mu.RLock()
	cancel := task.cancel
	task.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// List returns every retained task, oldest first.
func (tm *TaskManager) List() []TaskView {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	views := make([]TaskView, 0, tm.tasks.Len())
	tm.tasks.Scan(func(_ string, t *Task) bool {
		v := t.View()
		v.Result = nil
		views = append(views, v)
		return true
	})
	return views
}

func (tm *TaskManager) evictLocked() {
	if tm.maxRetained <= 0 || tm.tasks.Len() <= tm.maxRetained {
		return
	}
	excess := tm.tasks.Len() - tm.maxRetained
	var victims []string
	tm.tasks.Scan(func(id string, t *Task) bool {
		if t.Status().finished() {
			victims = append(victims, id)
		}
		return len(victims) < excess
	})
	for _, id := range victims {
		tm.tasks.Delete(id)
	}
	if len(victims) > 0 {
		slog.Debug("[TASK] Evicted finished tasks", "count", len(victims))
	}
}

// newTaskID returns a time-ordered UUIDv7, so the btree order is creation order.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// --- Methods for updating a Task ---

func (t *Task) ID() string { return t.id }

func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// View copies the task state.
func (t *Task) View() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := TaskView{
		ID:              t.id,
		Status:          t.status,
		ProgressMessage: t.progressMessage,
		Error:           t.err,
		ErrorKind:       t.errKind,
		Files:           t.files,
		CreatedAt:       t.createdAt,
		Result:          t.result,
	}
	if !t.finishedAt.IsZero() {
		at := t.finishedAt
		v.FinishedAt = &at
	}
	return v
}

// SetStatus updates the status of the task.
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// SetProgress updates the progress message for the task.
func (t *Task) SetProgress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressMessage = message
}

// PDFsLoaded stores the batch and completes the task.
func (t *Task) PDFsLoaded(_ context.Context, batch extract.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = batch
	t.status = TaskStatusCompleted
	t.progressMessage = ""
	t.finishedAt = time.Now()
	return nil
}

// ExtractionFailed records the failure. Cancellation is reported as its own status.
func (t *Task) ExtractionFailed(_ context.Context, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskStatusFailed
	if errors.Is(err, context.Canceled) {
		t.status = TaskStatusCanceled
	}
	t.err = err.Error()
	t.errKind = extract.Kind(err)
	t.progressMessage = ""
	t.finishedAt = time.Now()
}
