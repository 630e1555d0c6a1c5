package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps the most recently read data sets in front of another
// Store. Simulation records always go to the backend.
type CachedStore struct {
	Store
	datasets *lru.Cache[dataSetKey, DataSetRecord]
}

// NewCachedStore wraps inner with an LRU of size data sets.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	c, err := lru.New[dataSetKey, DataSetRecord](size)
	if err != nil {
		return nil, fmt.Errorf("data set cache: %w", err)
	}
	return &CachedStore{Store: inner, datasets: c}, nil
}

func (s *CachedStore) SaveDataSet(ctx context.Context, rec DataSetRecord) error {
	if err := s.Store.SaveDataSet(ctx, rec); err != nil {
		return err
	}
	s.datasets.Remove(dataSetKey{rec.SimulationID, rec.Index})
	return nil
}

func (s *CachedStore) GetDataSet(ctx context.Context, simulationID string, index int) (DataSetRecord, bool, error) {
	key := dataSetKey{simulationID, index}
	if rec, ok := s.datasets.Get(key); ok {
		return rec, true, nil
	}
	rec, ok, err := s.Store.GetDataSet(ctx, simulationID, index)
	if err != nil || !ok {
		return rec, ok, err
	}
	s.datasets.Add(key, rec)
	return rec, true, nil
}

// Cached reports how many data sets are currently held in memory.
func (s *CachedStore) Cached() int {
	return s.datasets.Len()
}

func (s *CachedStore) Close() error {
	return CloseIfSupported(s.Store)
}
