package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"swarm/llm"
)

const (
	minWorkers = 2
	maxWorkers = 10

	defaultDispatchTimeout = 1 * time.Second
	defaultRetryBackoff    = 5 * time.Second
	defaultMonitorInterval = 30 * time.Second

	// stopGracePeriod bounds how long Stop waits for in-flight work
	stopGracePeriod = 10 * time.Second

	// scoring weights for FindBestAgentForTask
	capabilityWeight   = 40.0
	workloadWeight     = 30.0
	workloadPenalty    = 10.0
	memoryBonusHigh    = 20.0
	memoryBonusLow     = 10.0
	memoryScoreCutoff  = 80.0
	activityBonusHigh  = 10.0
	activityBonusLow   = 5.0
	activityScoreRange = 5 * time.Minute
)

// ManagerOptions configures the manager's background loops. Zero values
// fall back to defaults; Workers is clamped to [2, 10].
type ManagerOptions struct {
	Workers         int
	DispatchTimeout time.Duration
	RetryBackoff    time.Duration
	MonitorInterval time.Duration
	StuckPhaseAge   time.Duration
	Metrics         *Metrics
}

// Manager owns the agent registry, the shared task queue and message bus,
// and the background dispatcher and health monitor. Construct one
// explicitly and pass it where needed; there is no package-level instance.
type Manager struct {
	llmManager *llm.Manager
	bus        *MessageBus
	queue      *TaskQueue
	metrics    *Metrics

	agents         map[string]*Agent
	teams          map[string]*Team
	collaborations map[string]*Collaboration

	workers         int
	dispatchTimeout time.Duration
	retryBackoff    time.Duration
	monitorInterval time.Duration
	stuckPhaseAge   time.Duration

	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	semaphore chan struct{}
	startedAt time.Time

	mu sync.RWMutex
}

// SystemStatus is a read-only snapshot of the whole system
type SystemStatus struct {
	Running           bool                   `json:"running"`
	Uptime            time.Duration          `json:"uptime"`
	Agents            map[string]AgentStatus `json:"agents"`
	AgentsByState     map[AgentState]int     `json:"agents_by_state"`
	QueueSize         int                    `json:"queue_size"`
	TasksProcessed    int                    `json:"tasks_processed"`
	Teams             int                    `json:"teams"`
	Collaborations    int                    `json:"collaborations"`
	SystemMemoryUsage float64                `json:"system_memory_usage"`
	Bus               BusStats               `json:"bus"`
}

// SystemHealth is the outcome of a system-wide health check
type SystemHealth struct {
	Healthy bool                    `json:"healthy"`
	Agents  map[string]HealthReport `json:"agents"`
}

// NewManager creates a manager with its own bus and queue
func NewManager(llmManager *llm.Manager, opts ManagerOptions) *Manager {
	if opts.Workers < minWorkers {
		opts.Workers = minWorkers
	}
	if opts.Workers > maxWorkers {
		opts.Workers = maxWorkers
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = defaultMonitorInterval
	}

	bus := NewMessageBus()
	if opts.Metrics != nil {
		bus.SetRecordHook(opts.Metrics.recordMessage)
	}

	return &Manager{
		llmManager:      llmManager,
		bus:             bus,
		queue:           NewTaskQueue(),
		metrics:         opts.Metrics,
		agents:          make(map[string]*Agent),
		teams:           make(map[string]*Team),
		collaborations:  make(map[string]*Collaboration),
		workers:         opts.Workers,
		dispatchTimeout: opts.DispatchTimeout,
		retryBackoff:    opts.RetryBackoff,
		monitorInterval: opts.MonitorInterval,
		stuckPhaseAge:   opts.StuckPhaseAge,
		semaphore:       make(chan struct{}, opts.Workers),
	}
}

// Bus returns the shared message bus
func (m *Manager) Bus() *MessageBus {
	return m.bus
}

// Queue returns the shared task queue
func (m *Manager) Queue() *TaskQueue {
	return m.queue
}

// RegisterAgent adds an agent to the registry, attaches the bus and
// subscribes the agent's mailbox. Names must be unique.
func (m *Manager) RegisterAgent(a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[a.Name()]; exists {
		return fmt.Errorf("agent '%s' already registered", a.Name())
	}

	a.SetBus(m.bus)
	m.bus.Subscribe(a.Name(), a)
	m.agents[a.Name()] = a
	m.metrics.setAgents(len(m.agents))

	fmt.Printf("[AgentManager] Registered agent %q (role: %s)\n", a.Name(), a.Role())
	return nil
}

// UnregisterAgent stops an agent and removes it from the registry and bus
func (m *Manager) UnregisterAgent(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[name]
	if !ok {
		return fmt.Errorf("agent '%s' not registered", name)
	}

	a.Stop()
	m.bus.Unsubscribe(name)
	delete(m.agents, name)
	m.metrics.setAgents(len(m.agents))

	fmt.Printf("[AgentManager] Unregistered agent %q\n", name)
	return nil
}

// GetAgent looks up a registered agent by name
func (m *Manager) GetAgent(name string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent '%s' not registered", name)
	}
	return a, nil
}

// ListAgents returns registered agents sorted by name
func (m *Manager) ListAgents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agentsSortedLocked()
}

func (m *Manager) agentsSortedLocked() []*Agent {
	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SubmitTask enqueues a task for the dispatcher. Submission never blocks
// on agent availability.
func (m *Manager) SubmitTask(task *Task) *Task {
	m.queue.Enqueue(task, "")
	m.metrics.recordSubmitted()
	m.metrics.setQueueDepth(m.queue.Size())

	fmt.Printf("[AgentManager] Submitted task %s (%s, priority %s)\n",
		task.ID, task.Description, task.Priority)
	return task
}

// FindBestAgentForTask scores every active agent and returns the highest
// scorer, breaking ties toward name order. Scoring favors capability
// coverage, spare task capacity, memory headroom and recent activity.
// Returns nil when no agent is active.
func (m *Manager) FindBestAgentForTask(task *Task) *Agent {
	m.mu.RLock()
	candidates := m.agentsSortedLocked()
	m.mu.RUnlock()

	var best *Agent
	bestScore := -1.0
	for _, a := range candidates {
		if a.State() != StateActive {
			continue
		}
		score := scoreAgent(a, task)
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best
}

// scoreAgent computes the dispatch score for one agent against one task
func scoreAgent(a *Agent, task *Task) float64 {
	score := 0.0

	if len(task.RequiredCapabilities) == 0 {
		score += capabilityWeight
	} else {
		matched := 0
		for _, cap := range task.RequiredCapabilities {
			if a.HasCapability(cap) {
				matched++
			}
		}
		score += capabilityWeight * float64(matched) / float64(len(task.RequiredCapabilities))
	}

	if headroom := workloadWeight - workloadPenalty*float64(a.ActiveTaskCount()); headroom > 0 {
		score += headroom
	}

	if a.MemoryUsage() < memoryScoreCutoff {
		score += memoryBonusHigh
	} else {
		score += memoryBonusLow
	}

	if time.Since(a.LastActivity()) < activityScoreRange {
		score += activityBonusHigh
	} else {
		score += activityBonusLow
	}

	return score
}

// AssignTaskToAgent assigns a task directly to a named agent, bypassing
// scoring. The agent's own capability gate still applies.
func (m *Manager) AssignTaskToAgent(task *Task, name string) bool {
	a, err := m.GetAgent(name)
	if err != nil {
		return false
	}
	task.normalize()
	return a.AssignTask(task)
}

// AutoAssignTask scores agents and assigns the task to the best one that
// accepts it, trying candidates in descending score order. Returns the
// chosen agent, or nil with false when no agent accepted it.
func (m *Manager) AutoAssignTask(task *Task) (*Agent, bool) {
	task.normalize()

	m.mu.RLock()
	candidates := m.agentsSortedLocked()
	m.mu.RUnlock()

	type scored struct {
		agent *Agent
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, a := range candidates {
		if a.State() != StateActive {
			continue
		}
		ranked = append(ranked, scored{agent: a, score: scoreAgent(a, task)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	for _, candidate := range ranked {
		if candidate.agent.AssignTask(task) {
			return candidate.agent, true
		}
	}
	return nil, false
}

// CreateTeam builds a named team from the given agents, registering any
// that are not yet registered.
func (m *Manager) CreateTeam(name string, agents []*Agent, strategy Strategy) (*Team, error) {
	m.mu.Lock()
	if _, exists := m.teams[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("team '%s' already exists", name)
	}
	m.mu.Unlock()

	for _, a := range agents {
		if _, err := m.GetAgent(a.Name()); err != nil {
			if err := m.RegisterAgent(a); err != nil {
				return nil, fmt.Errorf("registering team member: %w", err)
			}
		}
	}

	team := NewTeam(name, agents, strategy, m.bus)

	m.mu.Lock()
	m.teams[name] = team
	m.mu.Unlock()

	fmt.Printf("[AgentManager] Created team %q with %d members (%s)\n",
		name, len(agents), strategy)
	return team, nil
}

// GetTeam looks up a team by name
func (m *Manager) GetTeam(name string) (*Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	team, ok := m.teams[name]
	if !ok {
		return nil, fmt.Errorf("team '%s' not found", name)
	}
	return team, nil
}

// OrchestrateCollaboration starts a phase-gated collaboration over the
// task, registering any unregistered participants first.
func (m *Manager) OrchestrateCollaboration(task *Task, agents []*Agent) (*Collaboration, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("collaboration needs at least one agent")
	}

	for _, a := range agents {
		if _, err := m.GetAgent(a.Name()); err != nil {
			if err := m.RegisterAgent(a); err != nil {
				return nil, fmt.Errorf("registering participant: %w", err)
			}
		}
	}

	collab := NewCollaboration(task, agents, m.bus).Start()

	m.mu.Lock()
	m.collaborations[collab.ID()] = collab
	m.mu.Unlock()

	fmt.Printf("[AgentManager] Started collaboration %s on task %s with %d agents\n",
		collab.ID(), task.ID, len(agents))
	return collab, nil
}

// Collaborations returns all tracked collaborations
func (m *Manager) Collaborations() []*Collaboration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Collaboration, 0, len(m.collaborations))
	for _, c := range m.collaborations {
		out = append(out, c)
	}
	return out
}

// Start launches the dispatcher and health monitor. Idempotent while
// running.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("manager already running")
	}

	m.running = true
	m.startedAt = time.Now()
	m.stopCh = make(chan struct{})

	m.wg.Add(2)
	go m.dispatchLoop()
	go m.monitorLoop()

	fmt.Printf("[AgentManager] Started (workers: %d)\n", m.workers)
	return nil
}

// Stop signals the background loops and waits up to a grace period for
// in-flight work to finish. Registered agents are left running.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Printf("[AgentManager] Stopped\n")
	case <-time.After(stopGracePeriod):
		fmt.Printf("[AgentManager] Stop timed out waiting for in-flight tasks\n")
	}
}

// Running reports whether the background loops are active
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// dispatchLoop pulls tasks off the queue and hands them to scored agents.
// When no agent accepts a task it is re-enqueued at high priority and the
// loop backs off before retrying, so tasks are never dropped.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		task := m.queue.Dequeue(m.dispatchTimeout)
		m.metrics.setQueueDepth(m.queue.Size())
		if task == nil {
			continue
		}

		agent, ok := m.AutoAssignTask(task)
		if !ok {
			fmt.Printf("[Dispatcher] No agent available for task %s, re-enqueueing at high priority\n", task.ID)
			m.queue.Enqueue(task, PriorityHigh)
			m.metrics.setQueueDepth(m.queue.Size())

			select {
			case <-m.stopCh:
				return
			case <-time.After(m.retryBackoff):
			}
			continue
		}

		m.metrics.recordDispatched(time.Since(task.EnqueuedAt))

		m.wg.Add(1)
		go m.executeTask(agent, task)
	}
}

// executeTask runs one dispatched task inside the bounded worker pool.
// Reasoning failures are recorded on the agent and logged, never allowed
// to take down the dispatcher.
func (m *Manager) executeTask(a *Agent, task *Task) {
	defer m.wg.Done()

	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	_, err := a.ExecuteTask(context.Background(), task)
	m.queue.MarkProcessed(task.ID)

	if err != nil {
		fmt.Printf("[Dispatcher] Task %s failed on %q: %v\n", task.ID, a.Name(), err)
		m.metrics.recordFinished(TaskFailed)
		return
	}

	fmt.Printf("[Dispatcher] Task %s completed by %q\n", task.ID, a.Name())
	m.metrics.recordFinished(TaskCompleted)
}

// monitorLoop periodically health-checks agents and flags collaborations
// whose current phase cannot or does not advance
func (m *Manager) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runHealthSweep()
		}
	}
}

func (m *Manager) runHealthSweep() {
	for _, a := range m.ListAgents() {
		report := a.HealthCheck()
		if !report.Healthy {
			fmt.Printf("[Monitor] Agent %q unhealthy (memory_ok: %v, no_stale: %v, recent: %v)\n",
				a.Name(), report.MemoryUsageOK, report.NoStaleTasks, report.LastActivityRecent)
		}
	}

	for _, c := range m.Collaborations() {
		if c.Stuck(m.stuckPhaseAge) {
			fmt.Printf("[Monitor] Collaboration %s stuck in phase %d on task %s\n",
				c.ID(), c.CurrentPhase(), c.Task().ID)
		}
	}
}

// SystemStatus snapshots the whole system. System memory usage is total
// entries across agents over total capacity.
func (m *Manager) SystemStatus() SystemStatus {
	m.mu.RLock()
	agents := m.agentsSortedLocked()
	teams := len(m.teams)
	collaborations := len(m.collaborations)
	running := m.running
	startedAt := m.startedAt
	m.mu.RUnlock()

	status := SystemStatus{
		Running:        running,
		Agents:         make(map[string]AgentStatus, len(agents)),
		AgentsByState:  make(map[AgentState]int),
		QueueSize:      m.queue.Size(),
		TasksProcessed: m.queue.TotalProcessed(),
		Teams:          teams,
		Collaborations: collaborations,
		Bus:            m.bus.Stats(),
	}
	if running {
		status.Uptime = time.Since(startedAt)
	}

	totalEntries, totalCapacity := 0, 0
	for _, a := range agents {
		status.Agents[a.Name()] = a.Status()
		status.AgentsByState[a.State()]++
		size, max := a.MemorySize()
		totalEntries += size
		totalCapacity += max
	}
	if totalCapacity > 0 {
		status.SystemMemoryUsage = float64(totalEntries) / float64(totalCapacity) * 100
	}

	return status
}

// HealthCheck runs every agent's health check. The system is healthy when
// every agent is.
func (m *Manager) HealthCheck() SystemHealth {
	health := SystemHealth{
		Healthy: true,
		Agents:  make(map[string]HealthReport),
	}

	for _, a := range m.ListAgents() {
		report := a.HealthCheck()
		health.Agents[a.Name()] = report
		if !report.Healthy {
			health.Healthy = false
		}
	}
	return health
}
