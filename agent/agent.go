package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"swarm/llm"
)

// AgentState is the lifecycle state of an agent
type AgentState string

const (
	StateIdle    AgentState = "idle"
	StateActive  AgentState = "active"
	StatePaused  AgentState = "paused"
	StateStopped AgentState = "stopped" // terminal
)

// Capability is a named skill tag used to match agents to tasks
type Capability string

// Action is the closed decision vocabulary for DecideNextAction
type Action string

const (
	ActionWait        Action = "wait"
	ActionThink       Action = "think"
	ActionAct         Action = "act"
	ActionCollaborate Action = "collaborate"
	ActionDelegate    Action = "delegate"
)

// Decision is the structured outcome of DecideNextAction
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Delegation transfers responsibility for a task between agents
type Delegation struct {
	Task   *Task     `json:"task"`
	From   string    `json:"from"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// AgentStatus is a read-only snapshot of an agent
type AgentStatus struct {
	Name           string       `json:"name"`
	Role           string       `json:"role"`
	State          AgentState   `json:"state"`
	Capabilities   []Capability `json:"capabilities"`
	ActiveTasks    int          `json:"active_tasks"`
	CompletedTasks int          `json:"completed_tasks"`
	FailedTasks    int          `json:"failed_tasks"`
	MemoryUsage    float64      `json:"memory_usage"`
	LastActivity   time.Time    `json:"last_activity"`
}

// HealthReport is the outcome of an agent health check
type HealthReport struct {
	Healthy            bool `json:"healthy"`
	MemoryUsageOK      bool `json:"memory_usage_ok"`
	NoStaleTasks       bool `json:"no_stale_tasks"`
	LastActivityRecent bool `json:"last_activity_recent"`
}

const (
	healthMemoryThreshold = 90.0
	healthActivityWindow  = 5 * time.Minute
)

// Options configures agent construction. Zero values fall back to
// defaults.
type Options struct {
	Role               string
	Capabilities       []Capability
	Purpose            llm.Purpose
	MaxConcurrentTasks int
	MaxTaskDuration    time.Duration
	MemorySize         int
}

// Agent is a named, capability-tagged autonomous worker with lifecycle
// state, its own Memory and bounded concurrent task capacity. The manager
// dispatches tasks to the same agent from parallel workers, so all state
// mutation goes through an internal mutex.
type Agent struct {
	name         string
	role         string
	purpose      llm.Purpose
	capabilities map[Capability]bool
	llmManager   *llm.Manager
	bus          *MessageBus

	state          AgentState
	memory         *Memory
	activeTasks    []*Task
	completedTasks []*Task
	failedTasks    []*Task

	maxConcurrentTasks int
	maxTaskDuration    time.Duration
	createdAt          time.Time
	lastActivity       time.Time

	mu sync.Mutex
}

// NewAgent creates an agent in the idle state. The llm manager is the only
// point of contact with the reasoning capability and is injected here.
func NewAgent(name string, llmManager *llm.Manager, opts Options) *Agent {
	if opts.Role == "" {
		opts.Role = "generalist"
	}
	if opts.Purpose == "" {
		opts.Purpose = llm.PurposeChat
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = 3
	}
	if opts.MaxTaskDuration <= 0 {
		opts.MaxTaskDuration = 5 * time.Minute
	}

	caps := make(map[Capability]bool, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		caps[c] = true
	}

	now := time.Now()
	return &Agent{
		name:               name,
		role:               opts.Role,
		purpose:            opts.Purpose,
		capabilities:       caps,
		llmManager:         llmManager,
		state:              StateIdle,
		memory:             NewMemory(opts.MemorySize),
		activeTasks:        make([]*Task, 0),
		completedTasks:     make([]*Task, 0),
		failedTasks:        make([]*Task, 0),
		maxConcurrentTasks: opts.MaxConcurrentTasks,
		maxTaskDuration:    opts.MaxTaskDuration,
		createdAt:          now,
		lastActivity:       now,
	}
}

// Name returns the agent's unique name
func (a *Agent) Name() string {
	return a.name
}

// Role returns the agent's free-text role label
func (a *Agent) Role() string {
	return a.role
}

// State returns the agent's current lifecycle state
func (a *Agent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetBus attaches the message bus. Called by the manager on registration.
func (a *Agent) SetBus(bus *MessageBus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bus = bus
}

// Start transitions the agent to active. A stopped agent cannot restart.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateStopped {
		return fmt.Errorf("agent '%s' is stopped", a.name)
	}

	a.state = StateActive
	a.lastActivity = time.Now()
	return nil
}

// Stop transitions the agent to stopped. Terminal: no further tasks.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateStopped
	a.lastActivity = time.Now()
}

// Pause suspends an active agent
func (a *Agent) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive {
		return fmt.Errorf("agent '%s' is not active", a.name)
	}

	a.state = StatePaused
	a.lastActivity = time.Now()
	return nil
}

// Resume reactivates a paused agent
func (a *Agent) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StatePaused {
		return fmt.Errorf("agent '%s' is not paused", a.name)
	}

	a.state = StateActive
	a.lastActivity = time.Now()
	return nil
}

// HasCapability reports whether the agent carries the capability
func (a *Agent) HasCapability(cap Capability) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capabilities[cap]
}

// Capabilities returns the agent's capability set, sorted for stable output
func (a *Agent) Capabilities() []Capability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capabilitiesLocked()
}

func (a *Agent) capabilitiesLocked() []Capability {
	caps := make([]Capability, 0, len(a.capabilities))
	for c := range a.capabilities {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// CanHandleTask reports whether the agent is active, under capacity, and
// carries every required capability (AND semantics).
func (a *Agent) CanHandleTask(task *Task) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canHandleLocked(task)
}

func (a *Agent) canHandleLocked(task *Task) bool {
	if a.state != StateActive {
		return false
	}
	if len(a.activeTasks) >= a.maxConcurrentTasks {
		return false
	}
	for _, cap := range task.RequiredCapabilities {
		if !a.capabilities[cap] {
			return false
		}
	}
	return true
}

// AssignTask accepts a task if the agent is active, under capacity and
// capable. Returns false with no side effects otherwise.
func (a *Agent) AssignTask(task *Task) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.canHandleLocked(task) {
		return false
	}

	task.AssignedAt = time.Now()
	task.Status = TaskInProgress
	a.activeTasks = append(a.activeTasks, task)
	a.lastActivity = time.Now()
	return true
}

// CompleteTask moves an active task to the completed list with its result.
// Returns false if the id is not among active tasks.
func (a *Agent) CompleteTask(id, result string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	task := a.removeActiveLocked(id)
	if task == nil {
		return false
	}

	task.Status = TaskCompleted
	task.Result = result
	task.CompletedAt = time.Now()
	a.completedTasks = append(a.completedTasks, task)
	a.lastActivity = time.Now()
	return true
}

// FailTask moves an active task to the failed list with the error.
// Returns false if the id is not among active tasks.
func (a *Agent) FailTask(id, errMsg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	task := a.removeActiveLocked(id)
	if task == nil {
		return false
	}

	task.Status = TaskFailed
	task.Error = errMsg
	task.CompletedAt = time.Now()
	a.failedTasks = append(a.failedTasks, task)
	a.lastActivity = time.Now()
	return true
}

func (a *Agent) removeActiveLocked(id string) *Task {
	for i, task := range a.activeTasks {
		if task.ID == id {
			a.activeTasks = append(a.activeTasks[:i], a.activeTasks[i+1:]...)
			return task
		}
	}
	return nil
}

// ActiveTaskCount returns the number of in-flight tasks
func (a *Agent) ActiveTaskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.activeTasks)
}

// ActiveTasks returns a copy of the in-flight task list
func (a *Agent) ActiveTasks() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Task, len(a.activeTasks))
	copy(out, a.activeTasks)
	return out
}

// CompletedTasks returns a copy of the completed task list
func (a *Agent) CompletedTasks() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Task, len(a.completedTasks))
	copy(out, a.completedTasks)
	return out
}

// FailedTasks returns a copy of the failed task list
func (a *Agent) FailedTasks() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Task, len(a.failedTasks))
	copy(out, a.failedTasks)
	return out
}

// SendMessage sends content to another agent via the bus. Returns false if
// no bus is attached or delivery fails.
func (a *Agent) SendMessage(to string, content any) bool {
	a.mu.Lock()
	bus := a.bus
	a.mu.Unlock()

	if bus == nil {
		return false
	}
	return bus.SendMessage(a.name, to, content)
}

// ReceiveMessage stores an inbound message in the agent's memory for later
// recall. Delivery to a stopped agent fails so the bus records the outcome.
func (a *Agent) ReceiveMessage(msg *Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateStopped {
		return fmt.Errorf("agent '%s' is stopped", a.name)
	}

	a.memory.Add(fmt.Sprintf("message_%s", msg.ID), msg, ImportanceNormal)
	a.lastActivity = time.Now()
	return nil
}

// Think builds a role- and context-annotated prompt and delegates to the
// reasoning capability. This is the agent's sole point of contact with the
// LLM boundary; failures surface as *llm.ProviderError.
func (a *Agent) Think(ctx context.Context, prompt string, thinkCtx map[string]any) (string, error) {
	a.mu.Lock()
	if a.llmManager == nil {
		a.mu.Unlock()
		return "", fmt.Errorf("agent '%s' has no reasoning capability", a.name)
	}
	manager := a.llmManager
	purpose := a.purpose
	system := fmt.Sprintf("You are %s, a %s. Capabilities: %s.",
		a.name, a.role, joinCapabilities(a.capabilitiesLocked()))
	a.lastActivity = time.Now()
	a.mu.Unlock()

	var sb strings.Builder
	if len(thinkCtx) > 0 {
		sb.WriteString("Context:\n")
		keys := make([]string, 0, len(thinkCtx))
		for k := range thinkCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", k, thinkCtx[k]))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(prompt)

	resp, err := manager.Generate(ctx, purpose, llm.Request{
		Prompt:  sb.String(),
		System:  system,
		Context: thinkCtx,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// DecideNextAction asks the reasoning capability to choose among the fixed
// action vocabulary. Malformed output is recovered locally with a safe
// wait decision; this method never returns an error.
func (a *Agent) DecideNextAction(ctx context.Context, decideCtx map[string]any) Decision {
	prompt := `Decide your next action. Respond with JSON only:
{"action": "<wait|think|act|collaborate|delegate>", "reason": "<short reason>"}`

	response, err := a.Think(ctx, prompt, decideCtx)
	if err != nil {
		return Decision{Action: ActionWait, Reason: fmt.Sprintf("think failed: %v", err)}
	}

	decision, ok := parseDecision(response)
	if !ok {
		return Decision{Action: ActionWait, Reason: "parse failure"}
	}
	return decision
}

// parseDecision extracts and validates a Decision from raw model output
func parseDecision(response string) (Decision, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Decision{}, false
	}

	var decision Decision
	if err := json.Unmarshal([]byte(response[start:end+1]), &decision); err != nil {
		return Decision{}, false
	}

	switch decision.Action {
	case ActionWait, ActionThink, ActionAct, ActionCollaborate, ActionDelegate:
		return decision, true
	default:
		return Decision{}, false
	}
}

// CollaborateWith produces a contribution for a task and forwards it to
// the other agent as a message.
func (a *Agent) CollaborateWith(ctx context.Context, other *Agent, task *Task, collabCtx map[string]any) (string, error) {
	prompt := fmt.Sprintf("Contribute your expertise to this task: %s", task.Description)
	contribution, err := a.Think(ctx, prompt, collabCtx)
	if err != nil {
		return "", err
	}

	a.SendMessage(other.Name(), map[string]any{
		"type":         "contribution",
		"task_id":      task.ID,
		"contribution": contribution,
	})
	return contribution, nil
}

// DelegateTask hands a task to another active, capable agent via the bus.
// The receiver must independently accept it; a rejected delegation is
// dropped, not retried.
func (a *Agent) DelegateTask(task *Task, target *Agent, reason string) bool {
	if target == nil || !target.CanHandleTask(task) {
		return false
	}

	return a.SendMessage(target.Name(), Delegation{
		Task:   task,
		From:   a.name,
		Reason: reason,
		At:     time.Now(),
	})
}

// AcceptDelegatedTask re-runs the capability gate before taking over a
// delegated task. Returns false if the agent cannot handle it.
func (a *Agent) AcceptDelegatedTask(d Delegation) bool {
	if d.Task == nil {
		return false
	}
	return a.AssignTask(d.Task)
}

// ExecuteTask runs a task to completion: the agent reasons about the task
// description and records the outcome. A reasoning failure is converted to
// a failed task and returned for the caller to log.
func (a *Agent) ExecuteTask(ctx context.Context, task *Task) (string, error) {
	taskCtx := map[string]any{"task_id": task.ID, "task_type": string(task.Type)}
	for k, v := range task.Metadata {
		taskCtx[k] = v
	}

	result, err := a.Think(ctx, fmt.Sprintf("Complete this task: %s", task.Description), taskCtx)
	if err != nil {
		a.FailTask(task.ID, err.Error())
		return "", err
	}

	a.CompleteTask(task.ID, result)
	return result, nil
}

// Remember stores a value in the agent's memory
func (a *Agent) Remember(key string, value any, importance Importance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory.Add(key, value, importance)
}

// Recall fetches a value from the agent's memory, or nil
func (a *Agent) Recall(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Get(key)
}

// Forget removes a value from the agent's memory and returns it, or nil
func (a *Agent) Forget(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Remove(key)
}

// MemoryUsage returns the agent's memory usage percentage
func (a *Agent) MemoryUsage() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.UsagePercentage()
}

// MemorySize returns current and maximum memory entry counts
func (a *Agent) MemorySize() (size, max int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Size(), a.memory.MaxSize()
}

// SearchMemory searches the agent's memory
func (a *Agent) SearchMemory(query string, limit int) []*MemoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Search(query, limit)
}

// LastActivity returns the time of the agent's most recent activity
func (a *Agent) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

// Touch updates the agent's activity timestamp
func (a *Agent) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity = time.Now()
}

// setLastActivity is a test hook for health-check scenarios
func (a *Agent) setLastActivity(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity = t
}

// Status returns a read-only snapshot of the agent
func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AgentStatus{
		Name:           a.name,
		Role:           a.role,
		State:          a.state,
		Capabilities:   a.capabilitiesLocked(),
		ActiveTasks:    len(a.activeTasks),
		CompletedTasks: len(a.completedTasks),
		FailedTasks:    len(a.failedTasks),
		MemoryUsage:    a.memory.UsagePercentage(),
		LastActivity:   a.lastActivity,
	}
}

// HealthCheck reports memory below 90% usage, no task active longer than
// the staleness bound, and activity within the last 5 minutes.
func (a *Agent) HealthCheck() HealthReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := HealthReport{
		MemoryUsageOK:      a.memory.UsagePercentage() < healthMemoryThreshold,
		NoStaleTasks:       true,
		LastActivityRecent: time.Since(a.lastActivity) < healthActivityWindow,
	}

	for _, task := range a.activeTasks {
		if !task.AssignedAt.IsZero() && time.Since(task.AssignedAt) > a.maxTaskDuration {
			report.NoStaleTasks = false
			break
		}
	}

	report.Healthy = report.MemoryUsageOK && report.NoStaleTasks && report.LastActivityRecent
	return report
}

func joinCapabilities(caps []Capability) string {
	if len(caps) == 0 {
		return "none"
	}
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
