package agent

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the terminal state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Priority ranks tasks for dispatch order
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Score maps a priority to its numeric rank for queue ordering
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// WorkflowKind selects the collaboration phase template for a task.
// It is a closed set: unknown strings resolve to WorkflowGeneral.
type WorkflowKind string

const (
	WorkflowAnalysis       WorkflowKind = "analysis"
	WorkflowCreative       WorkflowKind = "creative"
	WorkflowProblemSolving WorkflowKind = "problem_solving"
	WorkflowGeneral        WorkflowKind = "general"
)

// ParseWorkflowKind resolves a free-form task type to a workflow kind
func ParseWorkflowKind(s string) WorkflowKind {
	switch WorkflowKind(s) {
	case WorkflowAnalysis, WorkflowCreative, WorkflowProblemSolving:
		return WorkflowKind(s)
	default:
		return WorkflowGeneral
	}
}

// Task represents a unit of work. Identity (ID) is immutable once
// assigned; open-ended extra fields live in Metadata.
type Task struct {
	ID                   string         `json:"id"`
	Description          string         `json:"description"`
	Type                 WorkflowKind   `json:"type"`
	Priority             Priority       `json:"priority"`
	RequiredCapabilities []Capability   `json:"required_capabilities,omitempty"`
	Status               TaskStatus     `json:"status"`
	PriorityScore        int            `json:"priority_score"`
	Result               string         `json:"result,omitempty"`
	Error                string         `json:"error,omitempty"`
	EnqueuedAt           time.Time      `json:"enqueued_at,omitzero"`
	AssignedAt           time.Time      `json:"assigned_at,omitzero"`
	CompletedAt          time.Time      `json:"completed_at,omitzero"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// NewTask creates a task with defaults applied
func NewTask(description string) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		Type:        WorkflowGeneral,
		Priority:    PriorityNormal,
		Status:      TaskPending,
		Metadata:    make(map[string]any),
	}
}

// normalize fills in missing identity and defaults. Called by the queue on
// enqueue so hand-built Task literals behave the same as NewTask ones.
func (t *Task) normalize() {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.Type == "" {
		t.Type = WorkflowGeneral
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
}

// Requires reports whether the task demands the given capability
func (t *Task) Requires(cap Capability) bool {
	for _, c := range t.RequiredCapabilities {
		if c == cap {
			return true
		}
	}
	return false
}
