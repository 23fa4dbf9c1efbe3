package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Strategy selects how a team assigns incoming tasks
type Strategy string

const (
	StrategyRoundRobin      Strategy = "round_robin"
	StrategyCapabilityBased Strategy = "capability_based"
	StrategyLoadBalanced    Strategy = "load_balanced"
	StrategyCollaborative   Strategy = "collaborative"
)

// TeamContribution is one agent's share of a collaborative round. Err is
// set instead of Content when the agent's contribution call failed.
type TeamContribution struct {
	Agent   string `json:"agent"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

// CollaborationRound records one full collaborative pass over a task
type CollaborationRound struct {
	TaskID        string             `json:"task_id"`
	Contributions []TeamContribution `json:"contributions"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// TeamHealth aggregates member health
type TeamHealth struct {
	Members int                     `json:"members"`
	Active  int                     `json:"active"`
	Healthy int                     `json:"healthy"`
	Reports map[string]HealthReport `json:"reports"`
}

// TeamExperience is a derived view over past collaborative rounds
type TeamExperience struct {
	Rounds          int            `json:"rounds"`
	SuccessRate     float64        `json:"success_rate"` // rounds without errors / rounds
	ErrorsByAgent   map[string]int `json:"errors_by_agent"`
	TopContributor  string         `json:"top_contributor"`
	ContributionsBy map[string]int `json:"contributions_by"`
}

// Team is a named group of agents with an assignment strategy. Members
// are shared references: agents remain registered with the manager
// independently.
type Team struct {
	name     string
	agents   []*Agent
	strategy Strategy
	bus      *MessageBus

	rrIndex    int
	teamMemory map[string]any
	history    []*CollaborationRound

	mu sync.Mutex
}

// NewTeam creates a team over the given members
func NewTeam(name string, agents []*Agent, strategy Strategy, bus *MessageBus) *Team {
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	return &Team{
		name:       name,
		agents:     agents,
		strategy:   strategy,
		bus:        bus,
		teamMemory: make(map[string]any),
		history:    make([]*CollaborationRound, 0),
	}
}

// Name returns the team name
func (t *Team) Name() string {
	return t.name
}

// Strategy returns the team's assignment strategy
func (t *Team) Strategy() Strategy {
	return t.strategy
}

// Members returns the team's member list
func (t *Team) Members() []*Agent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Agent, len(t.agents))
	copy(out, t.agents)
	return out
}

// AssignTask dispatches a task according to the team strategy. For the
// collaborative strategy every member contributes instead of a single
// assignment.
func (t *Team) AssignTask(ctx context.Context, task *Task) bool {
	switch t.strategy {
	case StrategyCapabilityBased:
		return t.assignByCapability(task)
	case StrategyLoadBalanced:
		return t.assignByLoad(task)
	case StrategyCollaborative:
		return t.CollaborateOnTask(ctx, task) != nil
	default:
		return t.assignRoundRobin(task)
	}
}

// assignRoundRobin cycles the member list, wrapping modulo length
func (t *Team) assignRoundRobin(task *Task) bool {
	t.mu.Lock()
	if len(t.agents) == 0 {
		t.mu.Unlock()
		return false
	}
	member := t.agents[t.rrIndex%len(t.agents)]
	t.rrIndex++
	t.mu.Unlock()

	return member.AssignTask(task)
}

// assignByCapability picks the active member covering the most required
// capabilities; ties break toward list order.
func (t *Team) assignByCapability(task *Task) bool {
	t.mu.Lock()
	var best *Agent
	bestCovered := -1
	for _, member := range t.agents {
		if member.State() != StateActive {
			continue
		}
		covered := 0
		for _, cap := range task.RequiredCapabilities {
			if member.HasCapability(cap) {
				covered++
			}
		}
		if covered > bestCovered {
			best = member
			bestCovered = covered
		}
	}
	t.mu.Unlock()

	if best == nil {
		return false
	}
	return best.AssignTask(task)
}

// assignByLoad picks the active member with the fewest in-flight tasks
func (t *Team) assignByLoad(task *Task) bool {
	t.mu.Lock()
	var best *Agent
	bestLoad := -1
	for _, member := range t.agents {
		if member.State() != StateActive {
			continue
		}
		load := member.ActiveTaskCount()
		if bestLoad < 0 || load < bestLoad {
			best = member
			bestLoad = load
		}
	}
	t.mu.Unlock()

	if best == nil {
		return false
	}
	return best.AssignTask(task)
}

// CollaborateOnTask has every member independently contribute to the
// task. A single member's failure is recorded as an error entry rather
// than aborting the round.
func (t *Team) CollaborateOnTask(ctx context.Context, task *Task) *CollaborationRound {
	members := t.Members()
	if len(members) == 0 {
		return nil
	}
	lead := members[0]

	round := &CollaborationRound{
		TaskID:    task.ID,
		StartedAt: time.Now(),
	}

	teamCtx := map[string]any{"team": t.name, "task_id": task.ID}
	for _, member := range members {
		contribution, err := member.CollaborateWith(ctx, lead, task, teamCtx)
		if err != nil {
			round.Contributions = append(round.Contributions, TeamContribution{
				Agent: member.Name(),
				Err:   err.Error(),
			})
			continue
		}
		round.Contributions = append(round.Contributions, TeamContribution{
			Agent:   member.Name(),
			Content: contribution,
		})
	}

	round.CompletedAt = time.Now()

	t.mu.Lock()
	t.history = append(t.history, round)
	t.mu.Unlock()

	return round
}

// TeamMeeting asks every member for a perspective on the agenda and
// stores the outcome in team memory.
func (t *Team) TeamMeeting(ctx context.Context, agenda string) map[string]string {
	perspectives := make(map[string]string)

	for _, member := range t.Members() {
		prompt := fmt.Sprintf("Share your perspective on: %s", agenda)
		view, err := member.Think(ctx, prompt, map[string]any{"team": t.name, "agenda": agenda})
		if err != nil {
			perspectives[member.Name()] = fmt.Sprintf("error: %v", err)
			continue
		}
		perspectives[member.Name()] = view
	}

	t.mu.Lock()
	t.teamMemory["meeting_"+memoryKey(agenda)] = perspectives
	t.mu.Unlock()

	return perspectives
}

// ShareKnowledge records knowledge in team memory and forwards it to every
// other member via the bus.
func (t *Team) ShareKnowledge(agentName string, knowledge any) int {
	t.mu.Lock()
	t.teamMemory[fmt.Sprintf("knowledge_%s_%d", agentName, len(t.teamMemory))] = knowledge
	bus := t.bus
	members := make([]*Agent, len(t.agents))
	copy(members, t.agents)
	t.mu.Unlock()

	if bus == nil {
		return 0
	}

	shared := 0
	for _, member := range members {
		if member.Name() == agentName {
			continue
		}
		if bus.SendMessage(agentName, member.Name(), knowledge) {
			shared++
		}
	}
	return shared
}

// TeamMemory returns the value stored under a team memory key
func (t *Team) TeamMemory(key string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.teamMemory[key]
}

// History returns past collaborative rounds
func (t *Team) History() []*CollaborationRound {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*CollaborationRound, len(t.history))
	copy(out, t.history)
	return out
}

// Health aggregates member health reports
func (t *Team) Health() TeamHealth {
	health := TeamHealth{Reports: make(map[string]HealthReport)}

	for _, member := range t.Members() {
		health.Members++
		if member.State() == StateActive {
			health.Active++
		}
		report := member.HealthCheck()
		health.Reports[member.Name()] = report
		if report.Healthy {
			health.Healthy++
		}
	}
	return health
}

// LearnFromExperience derives aggregate statistics from past rounds
func (t *Team) LearnFromExperience() TeamExperience {
	t.mu.Lock()
	defer t.mu.Unlock()

	exp := TeamExperience{
		ErrorsByAgent:   make(map[string]int),
		ContributionsBy: make(map[string]int),
	}

	clean := 0
	for _, round := range t.history {
		exp.Rounds++
		hadError := false
		for _, c := range round.Contributions {
			if c.Err != "" {
				exp.ErrorsByAgent[c.Agent]++
				hadError = true
				continue
			}
			exp.ContributionsBy[c.Agent]++
		}
		if !hadError {
			clean++
		}
	}

	if exp.Rounds > 0 {
		exp.SuccessRate = float64(clean) / float64(exp.Rounds)
	}

	best := -1
	for agent, count := range exp.ContributionsBy {
		if count > best || (count == best && agent < exp.TopContributor) {
			best = count
			exp.TopContributor = agent
		}
	}
	return exp
}
