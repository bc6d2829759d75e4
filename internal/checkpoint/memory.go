package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"reelsmith/internal/state"
)

// Memory is an in-process Store used by tests and one-shot CLI runs. It
// applies the same claim and cancel semantics as the SQLite store.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*memoryEntry
}

type memoryEntry struct {
	record    *state.Record
	cancel    bool
	heartbeat *time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*memoryEntry)}
}

func (m *Memory) Save(_ context.Context, rec *state.Record) error {
	if rec == nil {
		return ErrNotFound
	}
	rec.Touch()
	clone, err := rec.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.jobs[rec.JobID]; ok {
		entry.record = clone
		return nil
	}
	m.jobs[rec.JobID] = &memoryEntry{record: clone}
	return nil
}

func (m *Memory) Load(_ context.Context, jobID string) (*state.Record, error) {
	m.mu.Lock()
	entry, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry.record.Clone()
}

func (m *Memory) Remove(_ context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, statuses ...state.Status) ([]*state.Record, error) {
	wanted := make(map[state.Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	m.mu.Lock()
	entries := make([]*memoryEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		if len(wanted) > 0 {
			if _, ok := wanted[entry.record.Status]; !ok {
				continue
			}
		}
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].record.CreatedAt.Before(entries[j].record.CreatedAt)
	})

	records := make([]*state.Record, 0, len(entries))
	for _, entry := range entries {
		clone, err := entry.record.Clone()
		if err != nil {
			return nil, err
		}
		records = append(records, clone)
	}
	return records, nil
}

func (m *Memory) Stats(_ context.Context) (map[state.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[state.Status]int)
	for _, entry := range m.jobs {
		stats[entry.record.Status]++
	}
	return stats, nil
}

func (m *Memory) ClaimPending(_ context.Context) (*state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *memoryEntry
	for _, entry := range m.jobs {
		if entry.record.Status != state.StatusPending {
			continue
		}
		if oldest == nil || entry.record.CreatedAt.Before(oldest.record.CreatedAt) {
			oldest = entry
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.record.Status = state.StatusRunning
	oldest.heartbeat = &now
	return oldest.record.Clone()
}

func (m *Memory) Heartbeat(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	entry.heartbeat = &now
	return nil
}

func (m *Memory) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reclaimed int64
	for _, entry := range m.jobs {
		if entry.record.Status != state.StatusRunning {
			continue
		}
		if entry.heartbeat == nil || !entry.heartbeat.Before(cutoff) {
			continue
		}
		entry.record.Status = state.StatusPending
		entry.heartbeat = nil
		reclaimed++
	}
	return reclaimed, nil
}

func (m *Memory) RequestCancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	entry.cancel = true
	return nil
}

func (m *Memory) CancelRequested(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[jobID]
	if !ok {
		return false, ErrNotFound
	}
	return entry.cancel, nil
}

func (m *Memory) Close() error { return nil }
