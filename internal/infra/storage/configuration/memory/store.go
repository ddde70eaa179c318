// Package memory provides in-memory configuration repositories for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ahrav/notification-service/internal/domain/configuration"
)

var (
	_ configuration.SMSRepository   = (*Store[configuration.SMSConfiguration])(nil)
	_ configuration.EmailRepository = (*Store[configuration.EmailConfiguration])(nil)
)

// Store keeps configurations in a map keyed by tenant, then identifier.
type Store[T configuration.Record] struct {
	mu      sync.RWMutex
	tenants map[string]map[string]T
}

// NewStore creates an empty in-memory repository.
func NewStore[T configuration.Record]() *Store[T] {
	return &Store[T]{tenants: make(map[string]map[string]T)}
}

// NewSMSStore creates an in-memory SMSRepository.
func NewSMSStore() *Store[configuration.SMSConfiguration] {
	return NewStore[configuration.SMSConfiguration]()
}

// NewEmailStore creates an in-memory EmailRepository.
func NewEmailStore() *Store[configuration.EmailConfiguration] {
	return NewStore[configuration.EmailConfiguration]()
}

func normalize[T configuration.Record](cfg T) T {
	switch c := any(cfg).(type) {
	case configuration.SMSConfiguration:
		return any(c.Normalized()).(T)
	case configuration.EmailConfiguration:
		return any(c.Normalized()).(T)
	}
	return cfg
}

func (s *Store[T]) Create(_ context.Context, tenant string, cfg T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.tenants[tenant]
	if !ok {
		byID = make(map[string]T)
		s.tenants[tenant] = byID
	}
	if _, exists := byID[cfg.Key()]; exists {
		return configuration.ErrConfigurationAlreadyExists
	}
	byID[cfg.Key()] = normalize(cfg)
	return nil
}

func (s *Store[T]) Update(_ context.Context, tenant string, cfg T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.tenants[tenant]
	if _, exists := byID[cfg.Key()]; !exists {
		return configuration.ErrConfigurationNotFound
	}
	byID[cfg.Key()] = normalize(cfg)
	return nil
}

func (s *Store[T]) Delete(_ context.Context, tenant, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.tenants[tenant]
	if _, exists := byID[identifier]; !exists {
		return configuration.ErrConfigurationNotFound
	}
	delete(byID, identifier)
	if len(byID) == 0 {
		delete(s.tenants, tenant)
	}
	return nil
}

func (s *Store[T]) FindByIdentifier(_ context.Context, tenant, identifier string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.tenants[tenant][identifier]
	if !ok {
		var zero T
		return zero, configuration.ErrConfigurationNotFound
	}
	return cfg, nil
}

func (s *Store[T]) FindAllActive(_ context.Context, tenant string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]T, 0, len(s.tenants[tenant]))
	for _, cfg := range s.tenants[tenant] {
		if cfg.IsActive() {
			active = append(active, cfg)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Key() < active[j].Key() })
	return active, nil
}

func (s *Store[T]) Exists(_ context.Context, tenant, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tenants[tenant][identifier]
	return ok, nil
}
