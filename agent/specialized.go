package agent

import (
	"context"
	"fmt"
	"strings"

	"swarm/llm"
	"swarm/web"
)

// Specialized agents are the base Agent parameterized with a default role,
// capability set and reasoning purpose, plus templated convenience methods
// that route through Think and store their result in memory. They add no
// state-machine behavior of their own.

// ResearchAgent specializes in information gathering and source analysis
type ResearchAgent struct {
	*Agent
	fetcher *web.Fetcher
}

// NewResearchAgent creates a research agent with its default profile
func NewResearchAgent(name string, llmManager *llm.Manager, opts Options) *ResearchAgent {
	if opts.Role == "" {
		opts.Role = "research specialist"
	}
	if opts.Purpose == "" {
		opts.Purpose = llm.PurposeResearch
	}
	if len(opts.Capabilities) == 0 {
		opts.Capabilities = []Capability{"research", "analysis", "summarization", "web"}
	}
	return &ResearchAgent{Agent: NewAgent(name, llmManager, opts)}
}

// SetFetcher attaches a web content fetcher used to fold source material
// into research prompts
func (a *ResearchAgent) SetFetcher(fetcher *web.Fetcher) {
	a.fetcher = fetcher
}

// ResearchTopic researches a topic, optionally pulling in source URLs, and
// remembers the findings.
func (a *ResearchAgent) ResearchTopic(ctx context.Context, topic string, sources ...string) (string, error) {
	researchCtx := map[string]any{"topic": topic}

	if a.fetcher != nil && len(sources) > 0 {
		var material strings.Builder
		for _, src := range sources {
			text, err := a.fetcher.FetchReadable(ctx, src)
			if err != nil {
				// A dead source should not sink the whole research call
				fmt.Printf("[ResearchAgent] Skipping source %s: %v\n", src, err)
				continue
			}
			material.WriteString(fmt.Sprintf("--- %s ---\n%s\n", src, text))
		}
		if material.Len() > 0 {
			researchCtx["sources"] = material.String()
		}
	}

	prompt := fmt.Sprintf(`Research the following topic thoroughly: %s

Provide key findings, supporting evidence, and open questions.`, topic)

	result, err := a.Think(ctx, prompt, researchCtx)
	if err != nil {
		return "", err
	}

	a.Remember("research_"+memoryKey(topic), result, ImportanceHigh)
	return result, nil
}

// CreativeAgent specializes in ideation and writing
type CreativeAgent struct {
	*Agent
}

// NewCreativeAgent creates a creative agent with its default profile
func NewCreativeAgent(name string, llmManager *llm.Manager, opts Options) *CreativeAgent {
	if opts.Role == "" {
		opts.Role = "creative specialist"
	}
	if opts.Purpose == "" {
		opts.Purpose = llm.PurposeCreative
	}
	if len(opts.Capabilities) == 0 {
		opts.Capabilities = []Capability{"creativity", "writing", "brainstorming"}
	}
	return &CreativeAgent{Agent: NewAgent(name, llmManager, opts)}
}

// Brainstorm generates ideas for a subject and remembers them
func (a *CreativeAgent) Brainstorm(ctx context.Context, subject string) (string, error) {
	prompt := fmt.Sprintf(`Brainstorm ideas for: %s

List at least five distinct ideas with a one-line rationale each.`, subject)

	result, err := a.Think(ctx, prompt, map[string]any{"subject": subject})
	if err != nil {
		return "", err
	}

	a.Remember("brainstorm_"+memoryKey(subject), result, ImportanceNormal)
	return result, nil
}

// TechnicalAgent specializes in engineering problem solving
type TechnicalAgent struct {
	*Agent
}

// NewTechnicalAgent creates a technical agent with its default profile
func NewTechnicalAgent(name string, llmManager *llm.Manager, opts Options) *TechnicalAgent {
	if opts.Role == "" {
		opts.Role = "technical specialist"
	}
	if opts.Purpose == "" {
		opts.Purpose = llm.PurposeTechnical
	}
	if len(opts.Capabilities) == 0 {
		opts.Capabilities = []Capability{"coding", "debugging", "architecture"}
	}
	return &TechnicalAgent{Agent: NewAgent(name, llmManager, opts)}
}

// SolveProblem works through a technical problem and remembers the solution
func (a *TechnicalAgent) SolveProblem(ctx context.Context, problem string) (string, error) {
	prompt := fmt.Sprintf(`Solve this technical problem: %s

Explain the approach, the trade-offs considered, and the solution.`, problem)

	result, err := a.Think(ctx, prompt, map[string]any{"problem": problem})
	if err != nil {
		return "", err
	}

	a.Remember("solution_"+memoryKey(problem), result, ImportanceHigh)
	return result, nil
}

// CoordinatorAgent specializes in planning and delegation
type CoordinatorAgent struct {
	*Agent
}

// NewCoordinatorAgent creates a coordinator agent with its default profile
func NewCoordinatorAgent(name string, llmManager *llm.Manager, opts Options) *CoordinatorAgent {
	if opts.Role == "" {
		opts.Role = "coordinator"
	}
	if opts.Purpose == "" {
		opts.Purpose = llm.PurposeCoordination
	}
	if len(opts.Capabilities) == 0 {
		opts.Capabilities = []Capability{"coordination", "planning", "delegation"}
	}
	return &CoordinatorAgent{Agent: NewAgent(name, llmManager, opts)}
}

// CoordinateTask plans how a task should be split across the named agents
// and remembers the plan
func (a *CoordinatorAgent) CoordinateTask(ctx context.Context, task *Task, agentNames []string) (string, error) {
	prompt := fmt.Sprintf(`Plan the execution of this task: %s

Available agents: %s
Produce an ordered plan assigning work to agents.`, task.Description, strings.Join(agentNames, ", "))

	result, err := a.Think(ctx, prompt, map[string]any{"task_id": task.ID})
	if err != nil {
		return "", err
	}

	a.Remember("plan_"+task.ID, result, ImportanceHigh)
	return result, nil
}

// memoryKey derives a stable memory key fragment from free text
func memoryKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
