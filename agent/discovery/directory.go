package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// Store is the read/write surface of the capability directory used by the
// router, the feedback loop and the cross-instance synchronizer.
type Store interface {
	Register(ctx context.Context, capability *AgentCapability) error
	Unregister(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*AgentCapability, bool)
	ListAll(ctx context.Context) []*AgentCapability
	UpdateSuccessRate(ctx context.Context, name string, rate float64) error
	MergeSuccessRate(ctx context.Context, name string, merge func(current float64) float64) (float64, error)
	UpdateAvailability(ctx context.Context, name string, available bool, load float64) error
}

// Directory is the in-memory capability directory. Records are replaced
// wholesale under the write lock and handed out as copies, so a reader never
// observes a partially applied update.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*AgentCapability

	handlers  map[string]EventHandler
	handlerMu sync.RWMutex
	nextSubID uint64

	metrics RateObserver
	logger  *zap.Logger
}

// RateObserver is notified whenever an agent's success rate changes.
// The metrics collector satisfies it.
type RateObserver interface {
	SetAgentSuccessRate(agent string, rate float64)
}

var _ Store = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		agents:   make(map[string]*AgentCapability),
		handlers: make(map[string]EventHandler),
		logger:   logger.With(zap.String("component", "capability_directory")),
	}
}

// WithRateObserver attaches an observer for success-rate changes.
func (d *Directory) WithRateObserver(o RateObserver) *Directory {
	d.metrics = o
	return d
}

// Register adds a new agent. Registering an existing name fails.
func (d *Directory) Register(ctx context.Context, capability *AgentCapability) error {
	if capability == nil {
		return types.NewInvalidRequestError("capability is nil")
	}
	if capability.Name == "" {
		return types.NewInvalidRequestError("agent name is empty")
	}

	rec := capability.Clone()
	rec.SuccessRate = types.ClampRate(rec.SuccessRate)
	now := time.Now()
	rec.RegisteredAt = now
	rec.UpdatedAt = now

	d.mu.Lock()
	if _, exists := d.agents[rec.Name]; exists {
		d.mu.Unlock()
		return types.NewError(types.ErrAlreadyExists, fmt.Sprintf("agent %s already registered", rec.Name)).
			WithAgent(rec.Name)
	}
	d.agents[rec.Name] = rec
	d.mu.Unlock()

	d.logger.Info("agent registered",
		zap.String("agent", rec.Name),
		zap.String("role", rec.Role),
		zap.Int("domains", len(rec.Domains)),
		zap.Float64("success_rate", rec.SuccessRate),
	)
	d.observeRate(rec.Name, rec.SuccessRate)
	d.emitEvent(&Event{Type: EventAgentRegistered, Agent: rec.Name, NewRate: rec.SuccessRate, Timestamp: now})
	return nil
}

// Unregister removes an agent.
func (d *Directory) Unregister(ctx context.Context, name string) error {
	d.mu.Lock()
	if _, exists := d.agents[name]; !exists {
		d.mu.Unlock()
		return types.NewNotFoundError(name)
	}
	delete(d.agents, name)
	d.mu.Unlock()

	d.logger.Info("agent unregistered", zap.String("agent", name))
	d.emitEvent(&Event{Type: EventAgentUnregistered, Agent: name, Timestamp: time.Now()})
	return nil
}

// Get returns a copy of the named agent's capability.
func (d *Directory) Get(ctx context.Context, name string) (*AgentCapability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[name]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Exists reports whether an agent with the given name is registered.
func (d *Directory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.agents[name]
	return ok
}

// ListAll returns copies of every registered capability, sorted by name.
func (d *Directory) ListAll(ctx context.Context) []*AgentCapability {
	d.mu.RLock()
	result := make([]*AgentCapability, 0, len(d.agents))
	for _, rec := range d.agents {
		result = append(result, rec.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len returns the number of registered agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// UpdateSuccessRate sets the agent's success rate, clamped to [0, 1].
func (d *Directory) UpdateSuccessRate(ctx context.Context, name string, rate float64) error {
	rate = types.ClampRate(rate)
	now := time.Now()

	d.mu.Lock()
	rec, ok := d.agents[name]
	if !ok {
		d.mu.Unlock()
		return types.NewNotFoundError(name)
	}
	old := rec.SuccessRate
	next := rec.Clone()
	next.SuccessRate = rate
	next.UpdatedAt = now
	d.agents[name] = next
	d.mu.Unlock()

	d.logger.Debug("success rate updated",
		zap.String("agent", name),
		zap.Float64("old_rate", old),
		zap.Float64("new_rate", rate),
	)
	d.observeRate(name, rate)
	d.emitEvent(&Event{Type: EventSuccessRateUpdated, Agent: name, OldRate: old, NewRate: rate, Timestamp: now})
	return nil
}

// MergeSuccessRate replaces the agent's rate with merge(current) under the
// write lock, so the read and the write form one step. The result is clamped
// to [0, 1] and returned.
func (d *Directory) MergeSuccessRate(ctx context.Context, name string, merge func(current float64) float64) (float64, error) {
	now := time.Now()

	d.mu.Lock()
	rec, ok := d.agents[name]
	if !ok {
		d.mu.Unlock()
		return 0, types.NewNotFoundError(name)
	}
	old := rec.SuccessRate
	next := rec.Clone()
	next.SuccessRate = types.ClampRate(merge(old))
	next.UpdatedAt = now
	d.agents[name] = next
	d.mu.Unlock()

	d.observeRate(name, next.SuccessRate)
	d.emitEvent(&Event{Type: EventSuccessRateUpdated, Agent: name, OldRate: old, NewRate: next.SuccessRate, Timestamp: now})
	return next.SuccessRate, nil
}

// UpdateAvailability sets the agent's availability flag and load factor.
func (d *Directory) UpdateAvailability(ctx context.Context, name string, available bool, load float64) error {
	now := time.Now()

	d.mu.Lock()
	rec, ok := d.agents[name]
	if !ok {
		d.mu.Unlock()
		return types.NewNotFoundError(name)
	}
	next := rec.Clone()
	next.Available = available
	next.Load = types.ClampRate(load)
	next.UpdatedAt = now
	d.agents[name] = next
	d.mu.Unlock()

	d.emitEvent(&Event{Type: EventAvailabilityUpdated, Agent: name, Timestamp: now})
	return nil
}

// Subscribe registers a handler for directory events and returns its id.
func (d *Directory) Subscribe(handler EventHandler) string {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()

	d.nextSubID++
	id := fmt.Sprintf("sub-%d", d.nextSubID)
	d.handlers[id] = handler
	return id
}

// Unsubscribe removes a handler.
func (d *Directory) Unsubscribe(subscriptionID string) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	delete(d.handlers, subscriptionID)
}

// emitEvent emits a directory event to all subscribers.
func (d *Directory) emitEvent(event *Event) {
	d.handlerMu.RLock()
	handlers := make([]EventHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.handlerMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

func (d *Directory) observeRate(name string, rate float64) {
	if d.metrics != nil {
		d.metrics.SetAgentSuccessRate(name, rate)
	}
}
