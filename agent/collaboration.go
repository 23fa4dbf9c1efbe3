package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CollaborationStatus is the lifecycle of a collaboration
type CollaborationStatus string

const (
	CollaborationPending    CollaborationStatus = "pending"
	CollaborationInProgress CollaborationStatus = "in_progress"
	CollaborationCompleted  CollaborationStatus = "completed"
	CollaborationFailed     CollaborationStatus = "failed"
)

// Phase is one ordered stage of a collaboration. RequiredAgents is the
// number of distinct contributors needed before the phase advances.
type Phase struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	RequiredAgents int    `json:"required_agents"`
}

// Contribution is one agent's input to a collaboration, tagged with the
// phase it was made in
type Contribution struct {
	Agent   string    `json:"agent"`
	Phase   int       `json:"phase"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// phasesFor maps a workflow kind to its fixed phase list. The table is
// exhaustive over WorkflowKind; unknown task types were already folded
// into WorkflowGeneral at parse time.
func phasesFor(kind WorkflowKind) []Phase {
	switch kind {
	case WorkflowAnalysis:
		return []Phase{
			{Name: "initial_analysis", Description: "Independent first-pass analysis", RequiredAgents: 2},
			{Name: "deep_dive", Description: "Detailed examination of findings", RequiredAgents: 2},
			{Name: "synthesis", Description: "Merge findings into a conclusion", RequiredAgents: 1},
		}
	case WorkflowCreative:
		return []Phase{
			{Name: "ideation", Description: "Generate candidate ideas", RequiredAgents: 3},
			{Name: "refinement", Description: "Refine the strongest ideas", RequiredAgents: 2},
			{Name: "final_selection", Description: "Select and polish the result", RequiredAgents: 1},
		}
	case WorkflowProblemSolving:
		return []Phase{
			{Name: "problem_definition", Description: "Agree on the problem statement", RequiredAgents: 2},
			{Name: "solution_generation", Description: "Propose candidate solutions", RequiredAgents: 2},
			{Name: "evaluation", Description: "Evaluate proposals against constraints", RequiredAgents: 2},
			{Name: "recommendation", Description: "Recommend the final approach", RequiredAgents: 1},
		}
	default:
		return []Phase{
			{Name: "contribution", Description: "Gather individual contributions", RequiredAgents: 2},
			{Name: "synthesis", Description: "Merge contributions into a result", RequiredAgents: 1},
		}
	}
}

// Collaboration is a phase-gated workflow over one task and a set of
// agents. A phase advances only when enough distinct agents have
// contributed to it; after the last phase a synthesis step produces the
// final result. Completed and failed are terminal.
type Collaboration struct {
	id     string
	task   *Task
	agents []*Agent
	bus    *MessageBus

	status         CollaborationStatus
	phases         []Phase
	currentPhase   int
	phaseStartedAt time.Time
	contributions  map[string][]Contribution
	result         string
	failure        string

	mu sync.Mutex
}

// NewCollaboration derives the phase list from the task's workflow kind.
// Phases are immutable after construction.
func NewCollaboration(task *Task, agents []*Agent, bus *MessageBus) *Collaboration {
	task.normalize()
	return &Collaboration{
		id:            uuid.New().String(),
		task:          task,
		agents:        agents,
		bus:           bus,
		status:        CollaborationPending,
		phases:        phasesFor(task.Type),
		contributions: make(map[string][]Contribution),
	}
}

// ID returns the collaboration id
func (c *Collaboration) ID() string {
	return c.id
}

// Task returns the originating task
func (c *Collaboration) Task() *Task {
	return c.task
}

// Status returns the current lifecycle status
func (c *Collaboration) Status() CollaborationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Phases returns a copy of the phase list
func (c *Collaboration) Phases() []Phase {
	out := make([]Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

// CurrentPhase returns the index of the active phase
func (c *Collaboration) CurrentPhase() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPhase
}

// Result returns the synthesized result once completed
func (c *Collaboration) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Failure returns the failure reason once failed
func (c *Collaboration) Failure() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Contributions returns all contributions by a given agent
func (c *Collaboration) Contributions(agentName string) []Contribution {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Contribution, len(c.contributions[agentName]))
	copy(out, c.contributions[agentName])
	return out
}

// Start transitions the collaboration to in_progress and notifies every
// participant of the first phase. Returns the collaboration for chaining.
func (c *Collaboration) Start() *Collaboration {
	c.mu.Lock()
	if c.status != CollaborationPending {
		c.mu.Unlock()
		return c
	}
	c.status = CollaborationInProgress
	c.phaseStartedAt = time.Now()
	c.mu.Unlock()

	c.notifyPhase(0)
	return c
}

// AddContribution records an agent's contribution for the current phase.
// When the phase's distinct-contributor requirement is met the
// collaboration advances, running synthesis after the last phase. Returns
// false when the collaboration is not accepting contributions.
func (c *Collaboration) AddContribution(ctx context.Context, agentName, content string) bool {
	c.mu.Lock()
	if c.status != CollaborationInProgress || c.currentPhase >= len(c.phases) {
		c.mu.Unlock()
		return false
	}

	phase := c.currentPhase
	c.contributions[agentName] = append(c.contributions[agentName], Contribution{
		Agent:   agentName,
		Phase:   phase,
		Content: content,
		At:      time.Now(),
	})

	if c.distinctContributorsLocked(phase) < c.phases[phase].RequiredAgents {
		c.mu.Unlock()
		return true
	}

	c.currentPhase++
	c.phaseStartedAt = time.Now()
	next := c.currentPhase
	done := next >= len(c.phases)
	c.mu.Unlock()

	if done {
		c.synthesize(ctx)
	} else {
		c.notifyPhase(next)
	}
	return true
}

// distinctContributorsLocked counts distinct agents that contributed to a
// phase
func (c *Collaboration) distinctContributorsLocked(phase int) int {
	count := 0
	for _, contributions := range c.contributions {
		for _, contribution := range contributions {
			if contribution.Phase == phase {
				count++
				break
			}
		}
	}
	return count
}

// synthesize concatenates all contributions into a structured prompt and
// asks the first participant to produce the unified result
func (c *Collaboration) synthesize(ctx context.Context) {
	if len(c.agents) == 0 {
		c.Fail("no participants to synthesize")
		return
	}

	c.mu.Lock()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Synthesize a unified result for this task: %s\n\nContributions:\n", c.task.Description))
	for phase := range c.phases {
		for _, contributions := range c.contributions {
			for _, contribution := range contributions {
				if contribution.Phase == phase {
					sb.WriteString(fmt.Sprintf("[%s/%s] %s\n",
						c.phases[phase].Name, contribution.Agent, contribution.Content))
				}
			}
		}
	}
	prompt := sb.String()
	synthesizer := c.agents[0]
	c.mu.Unlock()

	result, err := synthesizer.Think(ctx, prompt, map[string]any{"collaboration": c.id})
	if err != nil {
		c.Fail(err.Error())
		return
	}
	c.Complete(result)
}

// Complete records the final result and notifies participants. Terminal.
func (c *Collaboration) Complete(result string) {
	c.mu.Lock()
	if c.status != CollaborationInProgress && c.status != CollaborationPending {
		c.mu.Unlock()
		return
	}
	c.status = CollaborationCompleted
	c.result = result
	c.mu.Unlock()

	c.notify(map[string]any{
		"type":          "collaboration_completed",
		"collaboration": c.id,
		"result":        result,
	})
}

// Fail records the failure and notifies participants. Terminal.
func (c *Collaboration) Fail(reason string) {
	c.mu.Lock()
	if c.status == CollaborationCompleted || c.status == CollaborationFailed {
		c.mu.Unlock()
		return
	}
	c.status = CollaborationFailed
	c.failure = reason
	c.mu.Unlock()

	c.notify(map[string]any{
		"type":          "collaboration_failed",
		"collaboration": c.id,
		"reason":        reason,
	})
}

// Stuck reports a phase that cannot or does not advance: either the phase
// requires more distinct contributors than there are participants, or it
// has been open longer than maxAge.
func (c *Collaboration) Stuck(maxAge time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CollaborationInProgress || c.currentPhase >= len(c.phases) {
		return false
	}
	if c.phases[c.currentPhase].RequiredAgents > len(c.agents) {
		return true
	}
	return maxAge > 0 && time.Since(c.phaseStartedAt) > maxAge
}

// notifyPhase tells every participant a phase has started
func (c *Collaboration) notifyPhase(phase int) {
	if phase >= len(c.phases) {
		return
	}
	c.notify(map[string]any{
		"type":          "phase_started",
		"collaboration": c.id,
		"phase":         c.phases[phase].Name,
		"description":   c.phases[phase].Description,
	})
}

func (c *Collaboration) notify(content map[string]any) {
	if c.bus == nil {
		return
	}
	for _, participant := range c.agents {
		c.bus.SendMessage("collaboration:"+c.id, participant.Name(), content)
	}
}
