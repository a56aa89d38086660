package hooks

import (
	"context"
	"fmt"
	"sync"
)

// Event is one domain occurrence delivered to integrations. Action carries
// the mapping's action type so one event can fan out to several behaviors
// on the same connection.
type Event struct {
	Type   string
	Action string
	Data   map[string]any
}

// Str reads a string field from the event payload, empty when absent.
func (e Event) Str(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Target is everything a handler needs to reach the remote service: a fresh
// access token and the connection's decoded config.
type Target struct {
	WorkspaceID uint
	AccessToken string
	Config      map[string]any
}

// ConfigStr reads a string setting from the connection config.
func (t Target) ConfigStr(key string) string {
	if v, ok := t.Config[key].(string); ok {
		return v
	}
	return ""
}

// Result is the outcome of one handler invocation.
type Result struct {
	OK          bool
	ExternalID  string
	ExternalURL string
	// TerminalStatus is the provider-specific terminal state reported by
	// Archive ("archived", "closed", ...). Empty for Run results.
	TerminalStatus string
	Err            error
	// Retry marks a failure as transient (network, 429, 5xx). A 401/403 is
	// never retryable: the credential is dead and needs reconnection.
	Retry bool
}

// Success is the no-op outcome for events a handler does not care about.
func Success() Result {
	return Result{OK: true}
}

// SuccessWithRecord reports a created or matched external record.
func SuccessWithRecord(externalID, externalURL string) Result {
	return Result{OK: true, ExternalID: externalID, ExternalURL: externalURL}
}

// Archived reports a completed archive call with its terminal state.
func Archived(status string) Result {
	return Result{OK: true, TerminalStatus: status}
}

func Failure(err error, retry bool) Result {
	return Result{Err: err, Retry: retry}
}

// ConfigError is a terminal failure for a connection missing a required
// setting.
func ConfigError(integrationType, key string) Result {
	return Failure(fmt.Errorf("%s: missing %q in connection config", integrationType, key), false)
}

// Handler is the capability set every integration type implements.
type Handler interface {
	Type() string
	// Run delivers one event. Event types the handler has no behavior for
	// return Success() immediately.
	Run(ctx context.Context, event Event, target Target) Result
	// Archive closes the handler's copy of a linked external record.
	Archive(ctx context.Context, target Target, externalID string) Result
	// TestConnection makes a lightweight read-only call proving the stored
	// credential is still accepted.
	TestConnection(ctx context.Context, target Target) error
}

// Registry resolves integration types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

func (r *Registry) Get(integrationType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[integrationType]
	return h, ok
}

// DefaultRegistry returns a registry seeded with every supported provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewSlackHandler())
	r.Register(NewJiraHandler())
	r.Register(NewTeamsHandler())
	r.Register(NewSalesforceHandler())
	r.Register(NewZendeskHandler())
	r.Register(NewHubspotHandler())
	r.Register(NewClickupHandler())
	return r
}
