package llm

import (
	"context"
	"fmt"
	"sync"
)

// StubResponse is returned by Generate for every request while stub mode
// is enabled. Deterministic so tests can assert on it.
const StubResponse = "[stub response]"

// Manager manages LLM clients for different purposes
type Manager struct {
	clients map[Purpose]Client
	configs map[Purpose]Config
	stub    bool
	mu      sync.RWMutex
}

// NewManager creates a new LLM manager
func NewManager() *Manager {
	return &Manager{
		clients: make(map[Purpose]Client),
		configs: make(map[Purpose]Config),
	}
}

// SetStubResponses toggles stub mode. While enabled, Generate returns a
// fixed placeholder without contacting any provider.
func (m *Manager) SetStubResponses(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stub = enabled
}

// StubResponses reports whether stub mode is enabled
func (m *Manager) StubResponses() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stub
}

// RegisterClient registers a client for a specific purpose
func (m *Manager) RegisterClient(purpose Purpose, client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[purpose] = client
}

// RegisterConfig stores the configuration for a purpose
func (m *Manager) RegisterConfig(purpose Purpose, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[purpose] = config
}

// GetClient returns the client for a specific purpose.
// If the requested client is not registered, it falls back to the chat client.
func (m *Manager) GetClient(purpose Purpose) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if client, ok := m.clients[purpose]; ok {
		return client, nil
	}

	if purpose != PurposeChat {
		if chatClient, ok := m.clients[PurposeChat]; ok {
			return chatClient, nil
		}
	}

	return nil, fmt.Errorf("no LLM available for purpose: %s", purpose)
}

// Generate sends a request to the appropriate client based on purpose.
// In stub mode it returns a fixed placeholder.
func (m *Manager) Generate(ctx context.Context, purpose Purpose, req Request) (*Response, error) {
	if m.StubResponses() {
		return &Response{Content: StubResponse, Model: "stub"}, nil
	}

	client, err := m.GetClient(purpose)
	if err != nil {
		return nil, err
	}

	return client.Generate(ctx, req)
}

// GetConfig returns the configuration for a specific purpose
func (m *Manager) GetConfig(purpose Purpose) (Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	config, ok := m.configs[purpose]
	return config, ok
}

// ListRegistered returns the purposes that have a registered client
func (m *Manager) ListRegistered() []Purpose {
	m.mu.RLock()
	defer m.mu.RUnlock()

	purposes := make([]Purpose, 0, len(m.clients))
	for purpose := range m.clients {
		purposes = append(purposes, purpose)
	}

	return purposes
}
