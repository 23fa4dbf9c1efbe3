package llm

import (
	"context"
	"sync"
)

// StubClient is a deterministic in-memory Client for tests and offline
// runs. Responses can be scripted per prompt; unscripted prompts get the
// default response. A nil FailWith makes every call succeed.
type StubClient struct {
	Default  string
	FailWith *ProviderError

	mu        sync.Mutex
	scripted  map[string]string
	callCount int
	lastReq   Request
}

// NewStubClient creates a stub client with a default response
func NewStubClient(defaultResponse string) *StubClient {
	return &StubClient{
		Default:  defaultResponse,
		scripted: make(map[string]string),
	}
}

// Script registers a canned response for an exact prompt
func (c *StubClient) Script(prompt, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripted[prompt] = response
}

// Generate returns the scripted or default response, or the configured failure
func (c *StubClient) Generate(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	c.callCount++
	c.lastReq = req
	response, scripted := c.scripted[req.Prompt]
	fail := c.FailWith
	c.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if !scripted {
		response = c.Default
	}

	return &Response{Content: response, Model: c.GetModel()}, nil
}

// GetModel returns the stub model name
func (c *StubClient) GetModel() string {
	return "stub-model"
}

// GetProvider returns the stub provider name
func (c *StubClient) GetProvider() string {
	return "stub"
}

// IsAvailable always reports true
func (c *StubClient) IsAvailable(ctx context.Context) bool {
	return true
}

// CallCount returns how many Generate calls were made
func (c *StubClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callCount
}

// LastRequest returns the most recent request seen by the stub
func (c *StubClient) LastRequest() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReq
}
