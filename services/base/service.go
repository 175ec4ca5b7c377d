// Package base provides base components for all services.
// Services extend these base types to implement their specific functionality.
package base

import (
	"context"
	"fmt"
	"sync"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

// ServiceState represents the state of a service.
type ServiceState string

const (
	StateCreated  ServiceState = "created"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateStopped  ServiceState = "stopped"
	StateFailed   ServiceState = "failed"
)

// Service is the base interface for all services.
type Service interface {
	// Identity
	ID() string
	Name() string
	Version() string

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() ServiceState

	// Health
	Health(ctx context.Context) error
}

// Component is the base interface for service components (stores, workers).
type Component interface {
	// Initialize initializes the component
	Initialize(ctx context.Context) error
	// Shutdown shuts down the component
	Shutdown(ctx context.Context) error
	// Health checks component health
	Health(ctx context.Context) error
}

// LifecycleHooks allows services to customize lifecycle behavior.
type LifecycleHooks struct {
	// OnBeforeStart is called before starting components
	OnBeforeStart func(ctx context.Context) error
	// OnAfterStart is called after all components are started
	OnAfterStart func(ctx context.Context) error
	// OnBeforeStop is called before stopping components
	OnBeforeStop func(ctx context.Context) error
	// OnAfterStop is called after all components are stopped
	OnAfterStop func(ctx context.Context) error
}

// BaseService provides common functionality for all services.
type BaseService struct {
	mu sync.RWMutex

	id      string
	name    string
	version string
	state   ServiceState

	logger *logging.Logger

	// Components are initialized on Start in registration order and shut
	// down in reverse order on Stop.
	components []Component
	hooks      LifecycleHooks
}

// NewBaseService creates a new BaseService.
func NewBaseService(id, name, version string, logger *logging.Logger) *BaseService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BaseService{
		id:      id,
		name:    name,
		version: version,
		state:   StateCreated,
		logger:  logger.With("service", id),
	}
}

// AddComponent registers a component for lifecycle management.
func (s *BaseService) AddComponent(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, c)
}

// SetHooks sets lifecycle hooks.
func (s *BaseService) SetHooks(hooks LifecycleHooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hooks
}

// ID returns the service ID.
func (s *BaseService) ID() string {
	return s.id
}

// Name returns the service name.
func (s *BaseService) Name() string {
	return s.name
}

// Version returns the service version.
func (s *BaseService) Version() string {
	return s.version
}

// State returns the current service state.
func (s *BaseService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState sets the service state.
func (s *BaseService) SetState(state ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Logger returns the logger.
func (s *BaseService) Logger() *logging.Logger {
	return s.logger
}

// Start starts the base service with component lifecycle management.
func (s *BaseService) Start(ctx context.Context) error {
	s.SetState(StateStarting)
	s.logger.Info("service starting", "id", s.id)

	s.mu.RLock()
	components := append([]Component(nil), s.components...)
	hooks := s.hooks
	s.mu.RUnlock()

	if hooks.OnBeforeStart != nil {
		if err := hooks.OnBeforeStart(ctx); err != nil {
			s.SetState(StateFailed)
			return fmt.Errorf("before start hook: %w", err)
		}
	}

	for _, c := range components {
		if err := c.Initialize(ctx); err != nil {
			s.SetState(StateFailed)
			return fmt.Errorf("initialize component: %w", err)
		}
	}

	if hooks.OnAfterStart != nil {
		if err := hooks.OnAfterStart(ctx); err != nil {
			s.SetState(StateFailed)
			return fmt.Errorf("after start hook: %w", err)
		}
	}

	s.SetState(StateRunning)
	s.logger.Info("service started", "id", s.id)
	return nil
}

// Stop stops the base service. Components are shut down in reverse order.
func (s *BaseService) Stop(ctx context.Context) error {
	s.SetState(StateStopping)
	s.logger.Info("service stopping", "id", s.id)

	s.mu.RLock()
	components := append([]Component(nil), s.components...)
	hooks := s.hooks
	s.mu.RUnlock()

	if hooks.OnBeforeStop != nil {
		if err := hooks.OnBeforeStop(ctx); err != nil {
			s.logger.Error("before stop hook failed", "error", err)
		}
	}

	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Shutdown(ctx); err != nil {
			s.logger.Error("shutdown component failed", "error", err)
		}
	}

	if hooks.OnAfterStop != nil {
		if err := hooks.OnAfterStop(ctx); err != nil {
			s.logger.Error("after stop hook failed", "error", err)
		}
	}

	s.SetState(StateStopped)
	s.logger.Info("service stopped", "id", s.id)
	return nil
}

// Health checks if the service and all components are healthy.
func (s *BaseService) Health(ctx context.Context) error {
	state := s.State()
	if state != StateRunning {
		return fmt.Errorf("service not running: %s", state)
	}

	s.mu.RLock()
	components := append([]Component(nil), s.components...)
	s.mu.RUnlock()

	for _, c := range components {
		if err := c.Health(ctx); err != nil {
			return fmt.Errorf("component unhealthy: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Service Registry
// =============================================================================

// Registry manages service instances.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	order    []string
}

// NewRegistry creates a new service registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]Service),
	}
}

// Register registers a service.
func (r *Registry) Register(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[svc.ID()]; exists {
		return fmt.Errorf("service already registered: %s", svc.ID())
	}

	r.services[svc.ID()] = svc
	r.order = append(r.order, svc.ID())
	return nil
}

// Unregister unregisters a service.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.services, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a service by ID.
func (r *Registry) Get(id string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	return svc, ok
}

// List returns all registered services in registration order.
func (r *Registry) List() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]Service, 0, len(r.order))
	for _, id := range r.order {
		services = append(services, r.services[id])
	}
	return services
}

// StartAll starts all registered services in registration order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, svc := range r.List() {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start service %s: %w", svc.ID(), err)
		}
	}
	return nil
}

// StopAll stops all registered services in reverse registration order.
func (r *Registry) StopAll(ctx context.Context) error {
	services := r.List()
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil {
			return fmt.Errorf("stop service %s: %w", services[i].ID(), err)
		}
	}
	return nil
}
