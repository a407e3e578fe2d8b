package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory archive for tests.
type Memory struct {
	mu   sync.RWMutex
	runs map[string][]byte
	at   map[string]time.Time
}

// NewMemory returns an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string][]byte), at: make(map[string]time.Time)}
}

func (s *Memory) Driver() Driver { return DriverMemory }

func (s *Memory) SaveRun(ctx context.Context, run RunArtifacts) (Info, error) {
	if err := validateRunID(run.RunID); err != nil {
		return Info{}, err
	}
	if run.StoredAt.IsZero() {
		run.StoredAt = time.Now().UTC()
	}
	b, err := json.Marshal(run)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; ok {
		return Info{}, errors.New("run " + run.RunID + " already archived")
	}
	s.runs[run.RunID] = b
	s.at[run.RunID] = run.StoredAt
	return Info{RunID: run.RunID, Size: int64(len(b)), StoredAt: run.StoredAt}, nil
}

func (s *Memory) LoadRun(ctx context.Context, runID string) (RunArtifacts, error) {
	s.mu.RLock()
	b, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return RunArtifacts{}, ErrNotFound{RunID: runID}
	}
	var run RunArtifacts
	if err := json.Unmarshal(b, &run); err != nil {
		return RunArtifacts{}, err
	}
	return run, nil
}

func (s *Memory) ListRuns(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.runs))
	for id, b := range s.runs {
		infos = append(infos, Info{RunID: id, Size: int64(len(b)), StoredAt: s.at[id]})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RunID < infos[j].RunID })
	return infos, nil
}

func (s *Memory) Delete(ctx context.Context, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return false, nil
	}
	delete(s.runs, runID)
	delete(s.at, runID)
	return true, nil
}
