package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"swarm/llm"
)

// stubLLM returns a manager in stub mode: every Think call succeeds with
// the fixed placeholder and no provider is contacted
func stubLLM() *llm.Manager {
	m := llm.NewManager()
	m.SetStubResponses(true)
	return m
}

// scriptedLLM routes every purpose to one stub client so tests can script
// exact responses
func scriptedLLM(client *llm.StubClient) *llm.Manager {
	m := llm.NewManager()
	m.RegisterClient(llm.PurposeChat, client)
	return m
}

func failingLLM(kind llm.ErrorKind) *llm.Manager {
	client := llm.NewStubClient("")
	client.FailWith = llm.NewProviderError("stub", kind, "simulated outage", nil)
	return scriptedLLM(client)
}

func activeAgent(t *testing.T, name string, caps ...Capability) *Agent {
	t.Helper()
	a := NewAgent(name, stubLLM(), Options{Capabilities: caps})
	require.NoError(t, a.Start())
	return a
}

func TestAgentLifecycle(t *testing.T) {
	a := NewAgent("worker", stubLLM(), Options{})
	assert.Equal(t, StateIdle, a.State())

	require.NoError(t, a.Start())
	assert.Equal(t, StateActive, a.State())

	require.NoError(t, a.Pause())
	assert.Equal(t, StatePaused, a.State())

	require.NoError(t, a.Resume())
	assert.Equal(t, StateActive, a.State())

	a.Stop()
	assert.Equal(t, StateStopped, a.State())
	assert.Error(t, a.Start(), "stopped is terminal")
}

func TestAgentPauseResumeGuards(t *testing.T) {
	a := NewAgent("worker", stubLLM(), Options{})

	assert.Error(t, a.Pause(), "only an active agent can pause")
	assert.Error(t, a.Resume(), "only a paused agent can resume")
}

func TestAgentDefaults(t *testing.T) {
	a := NewAgent("worker", stubLLM(), Options{})

	assert.Equal(t, "generalist", a.Role())
	assert.Equal(t, 0, a.ActiveTaskCount())
	_, max := a.MemorySize()
	assert.Equal(t, 100, max)
}

func TestAgentCapabilityGate(t *testing.T) {
	a := activeAgent(t, "coder", "coding", "debugging")

	task := NewTask("fix the build")
	task.RequiredCapabilities = []Capability{"coding", "debugging"}
	assert.True(t, a.CanHandleTask(task))

	task.RequiredCapabilities = []Capability{"coding", "design"}
	assert.False(t, a.CanHandleTask(task), "every required capability must be present")

	// the gate is a pure check: repeated calls see the same state
	assert.False(t, a.CanHandleTask(task))
	assert.True(t, a.CanHandleTask(NewTask("anything")))
	assert.Equal(t, 0, a.ActiveTaskCount())
}

func TestAgentCapabilityGateRequiresActive(t *testing.T) {
	a := NewAgent("idle", stubLLM(), Options{Capabilities: []Capability{"coding"}})
	task := NewTask("x")
	assert.False(t, a.CanHandleTask(task), "idle agents take no tasks")

	require.NoError(t, a.Start())
	require.NoError(t, a.Pause())
	assert.False(t, a.CanHandleTask(task), "paused agents take no tasks")
}

func TestAgentAssignTaskCapacity(t *testing.T) {
	a := NewAgent("busy", stubLLM(), Options{MaxConcurrentTasks: 2})
	require.NoError(t, a.Start())

	assert.True(t, a.AssignTask(NewTask("one")))
	assert.True(t, a.AssignTask(NewTask("two")))
	assert.False(t, a.AssignTask(NewTask("three")), "capacity reached")
	assert.Equal(t, 2, a.ActiveTaskCount())
}

func TestAgentAssignTaskStampsState(t *testing.T) {
	a := activeAgent(t, "worker")
	task := NewTask("stamp me")

	require.True(t, a.AssignTask(task))
	assert.Equal(t, TaskInProgress, task.Status)
	assert.False(t, task.AssignedAt.IsZero())
}

func TestAgentCompleteAndFailTask(t *testing.T) {
	a := activeAgent(t, "worker")
	done := NewTask("succeeds")
	broken := NewTask("breaks")
	require.True(t, a.AssignTask(done))
	require.True(t, a.AssignTask(broken))

	assert.True(t, a.CompleteTask(done.ID, "all good"))
	assert.True(t, a.FailTask(broken.ID, "boom"))

	assert.Equal(t, 0, a.ActiveTaskCount())
	require.Len(t, a.CompletedTasks(), 1)
	require.Len(t, a.FailedTasks(), 1)
	assert.Equal(t, "all good", a.CompletedTasks()[0].Result)
	assert.Equal(t, TaskCompleted, a.CompletedTasks()[0].Status)
	assert.Equal(t, "boom", a.FailedTasks()[0].Error)
	assert.Equal(t, TaskFailed, a.FailedTasks()[0].Status)

	assert.False(t, a.CompleteTask(done.ID, "again"), "not among active tasks anymore")
	assert.False(t, a.FailTask("no-such-id", "x"))
}

func TestAgentReceiveMessageStoresInMemory(t *testing.T) {
	a := activeAgent(t, "listener")
	msg := &Message{ID: "m1", From: "sender", To: "listener", Content: "ping"}

	require.NoError(t, a.ReceiveMessage(msg))
	assert.NotNil(t, a.Recall("message_m1"))
}

func TestAgentReceiveMessageWhenStopped(t *testing.T) {
	a := activeAgent(t, "listener")
	a.Stop()

	assert.Error(t, a.ReceiveMessage(&Message{ID: "m1"}))
}

func TestAgentSendMessageWithoutBus(t *testing.T) {
	a := activeAgent(t, "loner")
	assert.False(t, a.SendMessage("anyone", "hello"))
}

func TestAgentThinkBuildsRoleAnnotatedPrompt(t *testing.T) {
	client := llm.NewStubClient("an answer")
	a := NewAgent("sage", scriptedLLM(client), Options{
		Role:         "analyst",
		Capabilities: []Capability{"research", "analysis"},
	})
	require.NoError(t, a.Start())

	result, err := a.Think(context.Background(), "what changed?", map[string]any{"quarter": "Q3"})
	require.NoError(t, err)
	assert.Equal(t, "an answer", result)

	req := client.LastRequest()
	assert.Equal(t, "You are sage, a analyst. Capabilities: analysis, research.", req.System)
	assert.Contains(t, req.Prompt, "Context:")
	assert.Contains(t, req.Prompt, "- quarter: Q3")
	assert.Contains(t, req.Prompt, "what changed?")
}

func TestAgentThinkSurfacesProviderError(t *testing.T) {
	a := NewAgent("sage", failingLLM(llm.ErrRateLimit), Options{})
	require.NoError(t, a.Start())

	_, err := a.Think(context.Background(), "anything", nil)
	require.Error(t, err)

	var provErr *llm.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, llm.ErrRateLimit, provErr.Kind)
}

func TestDecideNextActionParsesValidJSON(t *testing.T) {
	client := llm.NewStubClient(`{"action": "delegate", "reason": "overloaded"}`)
	a := NewAgent("boss", scriptedLLM(client), Options{})
	require.NoError(t, a.Start())

	decision := a.DecideNextAction(context.Background(), nil)
	assert.Equal(t, ActionDelegate, decision.Action)
	assert.Equal(t, "overloaded", decision.Reason)
}

func TestDecideNextActionExtractsEmbeddedJSON(t *testing.T) {
	client := llm.NewStubClient("Sure! Here is my decision:\n{\"action\": \"act\", \"reason\": \"ready\"}\nLet me know.")
	a := NewAgent("boss", scriptedLLM(client), Options{})
	require.NoError(t, a.Start())

	decision := a.DecideNextAction(context.Background(), nil)
	assert.Equal(t, ActionAct, decision.Action)
}

func TestDecideNextActionFallsBackOnGarbage(t *testing.T) {
	for _, response := range []string{
		"I think we should probably wait and see",
		`{"action": "explode", "reason": "chaos"}`,
		`{"action": `,
	} {
		client := llm.NewStubClient(response)
		a := NewAgent("boss", scriptedLLM(client), Options{})
		require.NoError(t, a.Start())

		decision := a.DecideNextAction(context.Background(), nil)
		assert.Equal(t, ActionWait, decision.Action, "response: %s", response)
		assert.Equal(t, "parse failure", decision.Reason)
	}
}

func TestDecideNextActionNeverErrorsOnProviderFailure(t *testing.T) {
	a := NewAgent("boss", failingLLM(llm.ErrTransport), Options{})
	require.NoError(t, a.Start())

	decision := a.DecideNextAction(context.Background(), nil)
	assert.Equal(t, ActionWait, decision.Action)
	assert.Contains(t, decision.Reason, "think failed")
}

func TestDelegateTaskGate(t *testing.T) {
	bus := NewMessageBus()
	from := activeAgent(t, "from")
	capable := activeAgent(t, "capable", "coding")
	incapable := activeAgent(t, "incapable", "writing")
	for _, a := range []*Agent{from, capable, incapable} {
		a.SetBus(bus)
		bus.Subscribe(a.Name(), a)
	}

	task := NewTask("port the parser")
	task.RequiredCapabilities = []Capability{"coding"}

	assert.False(t, from.DelegateTask(task, incapable, "wrong skills"))
	assert.False(t, from.DelegateTask(task, nil, "nobody"))
	assert.True(t, from.DelegateTask(task, capable, "right skills"))
}

func TestAcceptDelegatedTaskRerunsGate(t *testing.T) {
	receiver := activeAgent(t, "receiver", "coding")

	task := NewTask("port the parser")
	task.RequiredCapabilities = []Capability{"coding"}
	d := Delegation{Task: task, From: "sender", Reason: "handoff", At: time.Now()}

	assert.True(t, receiver.AcceptDelegatedTask(d))
	assert.Equal(t, 1, receiver.ActiveTaskCount())

	blocked := NewTask("write a poem")
	blocked.RequiredCapabilities = []Capability{"writing"}
	assert.False(t, receiver.AcceptDelegatedTask(Delegation{Task: blocked, From: "sender"}))
	assert.False(t, receiver.AcceptDelegatedTask(Delegation{From: "sender"}), "delegation without a task")
}

func TestExecuteTaskCompletesOnSuccess(t *testing.T) {
	a := activeAgent(t, "worker")
	task := NewTask("do the thing")
	require.True(t, a.AssignTask(task))

	result, err := a.ExecuteTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, llm.StubResponse, result)
	assert.Len(t, a.CompletedTasks(), 1)
	assert.Equal(t, 0, a.ActiveTaskCount())
}

func TestExecuteTaskFailsOnProviderError(t *testing.T) {
	a := NewAgent("worker", failingLLM(llm.ErrAuth), Options{})
	require.NoError(t, a.Start())
	task := NewTask("doomed")
	require.True(t, a.AssignTask(task))

	_, err := a.ExecuteTask(context.Background(), task)
	require.Error(t, err)
	require.Len(t, a.FailedTasks(), 1)
	assert.Equal(t, TaskFailed, task.Status)
	assert.NotEmpty(t, task.Error)
}

func TestCollaborateWithSendsContribution(t *testing.T) {
	bus := NewMessageBus()
	alice := activeAgent(t, "alice")
	bob := activeAgent(t, "bob")
	for _, a := range []*Agent{alice, bob} {
		a.SetBus(bus)
		bus.Subscribe(a.Name(), a)
	}

	task := NewTask("joint effort")
	contribution, err := alice.CollaborateWith(context.Background(), bob, task, nil)
	require.NoError(t, err)
	assert.Equal(t, llm.StubResponse, contribution)
	assert.Len(t, bus.MessagesForAgent("bob"), 1)
}

func TestAgentMemoryOperations(t *testing.T) {
	a := activeAgent(t, "worker")

	a.Remember("fact", "water is wet", ImportanceHigh)
	assert.Equal(t, "water is wet", a.Recall("fact"))
	assert.Len(t, a.SearchMemory("water", 5), 1)
	assert.Equal(t, "water is wet", a.Forget("fact"))
	assert.Nil(t, a.Recall("fact"))
}

func TestAgentStatusSnapshot(t *testing.T) {
	a := activeAgent(t, "worker", "coding")
	require.True(t, a.AssignTask(NewTask("x")))

	status := a.Status()
	assert.Equal(t, "worker", status.Name)
	assert.Equal(t, StateActive, status.State)
	assert.Equal(t, []Capability{"coding"}, status.Capabilities)
	assert.Equal(t, 1, status.ActiveTasks)
}

func TestHealthCheckHealthyAgent(t *testing.T) {
	a := activeAgent(t, "worker")

	report := a.HealthCheck()
	assert.True(t, report.Healthy)
	assert.True(t, report.MemoryUsageOK)
	assert.True(t, report.NoStaleTasks)
	assert.True(t, report.LastActivityRecent)
}

func TestHealthCheckStaleActivity(t *testing.T) {
	a := activeAgent(t, "worker")
	a.setLastActivity(time.Now().Add(-10 * time.Minute))

	report := a.HealthCheck()
	assert.False(t, report.Healthy)
	assert.True(t, report.MemoryUsageOK)
	assert.True(t, report.NoStaleTasks)
	assert.False(t, report.LastActivityRecent)
}

func TestHealthCheckStaleTask(t *testing.T) {
	a := NewAgent("worker", stubLLM(), Options{MaxTaskDuration: time.Millisecond})
	require.NoError(t, a.Start())
	require.True(t, a.AssignTask(NewTask("slow")))
	time.Sleep(5 * time.Millisecond)

	report := a.HealthCheck()
	assert.False(t, report.Healthy)
	assert.False(t, report.NoStaleTasks)
}

func TestHealthCheckMemoryPressure(t *testing.T) {
	a := NewAgent("worker", stubLLM(), Options{MemorySize: 2})
	require.NoError(t, a.Start())
	a.Remember("a", 1, ImportanceCritical)
	a.Remember("b", 2, ImportanceCritical)
	a.Remember("c", 3, ImportanceCritical)

	report := a.HealthCheck()
	assert.False(t, report.MemoryUsageOK, "memory grew past its bound")
	assert.False(t, report.Healthy)
}
