// Package provider defines the contract between the engine and external
// capability providers (mail, chat, spreadsheet services). Providers are
// external collaborators: the engine only dispatches actions to them and
// checks connections; it knows nothing about their APIs.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/worqly/orchestrator/internal/credential"
)

// ActionSpec declares an action a provider can perform. The schema is an
// opaque JSON-schema-shaped document consumed by UI layers, not the engine.
type ActionSpec struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// TriggerSpec declares a trigger a provider can emit.
type TriggerSpec struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// ConnectionStatus is the outcome of a connection test.
type ConnectionStatus struct {
	Success bool           `json:"success"`
	Details map[string]any `json:"details,omitempty"`
}

// Provider is an external capability provider.
type Provider interface {
	Name() string
	// OAuthBacked reports whether actions require a valid credential.
	OAuthBacked() bool
	ExecuteAction(ctx context.Context, actionType string, config map[string]any, input map[string]any) (map[string]any, error)
	TestConnection(ctx context.Context, cred *credential.Credential) (ConnectionStatus, error)
	Actions() []ActionSpec
	Triggers() []TriggerSpec
}

// Registry holds the registered capability providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any previous one with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown capability provider: %s", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
