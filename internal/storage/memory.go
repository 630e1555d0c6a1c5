package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type dataSetKey struct {
	simulationID string
	index        int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	simulations map[string]SimulationRecord
	datasets    map[dataSetKey]DataSetRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.simulations = make(map[string]SimulationRecord)
	s.datasets = make(map[dataSetKey]DataSetRecord)
	return nil
}

func (s *MemoryStore) SaveSimulation(_ context.Context, rec SimulationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.simulations[rec.ID] = rec
	return nil
}

func (s *MemoryStore) GetSimulation(_ context.Context, id string) (SimulationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.simulations[id]
	return rec, ok, nil
}

// ListSimulations returns all records, oldest first.
func (s *MemoryStore) ListSimulations(_ context.Context) ([]SimulationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SimulationRecord, 0, len(s.simulations))
	for _, rec := range s.simulations {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveDataSet(_ context.Context, rec DataSetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.datasets[dataSetKey{rec.SimulationID, rec.Index}] = rec
	return nil
}

func (s *MemoryStore) GetDataSet(_ context.Context, simulationID string, index int) (DataSetRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.datasets[dataSetKey{simulationID, index}]
	return rec, ok, nil
}
