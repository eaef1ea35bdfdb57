package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/vsrank/internal/domain/model"
)

type memRow struct {
	rec     Record
	cleared bool
}

// Memory is a Store held in process memory. Used for demos and tests.
type Memory struct {
	mu     sync.RWMutex
	tables map[model.Mode]map[model.ParticipantID]memRow
}

// NewMemory returns an empty Memory store with one table per mode.
func NewMemory() *Memory {
	m := &Memory{tables: make(map[model.Mode]map[model.ParticipantID]memRow, len(model.Modes))}
	for _, mode := range model.Modes {
		m.tables[mode] = make(map[model.ParticipantID]memRow)
	}
	return m
}

func (m *Memory) table(mode model.Mode) (map[model.ParticipantID]memRow, error) {
	t, ok := m.tables[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return t, nil
}

func (m *Memory) Get(_ context.Context, mode model.Mode, id model.ParticipantID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.table(mode)
	if err != nil {
		return Record{}, err
	}
	row, ok := t[id]
	if !ok || row.cleared {
		return Record{}, ErrNotFound
	}
	return row.rec, nil
}

func (m *Memory) Upsert(ctx context.Context, mode model.Mode, rec Record) error {
	return m.UpsertMany(ctx, mode, []Record{rec})
}

func (m *Memory) UpsertMany(_ context.Context, mode model.Mode, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(mode)
	if err != nil {
		return err
	}
	for _, r := range recs {
		t[r.ParticipantID] = memRow{rec: r}
	}
	return nil
}

func (m *Memory) Clear(_ context.Context, mode model.Mode, id model.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(mode)
	if err != nil {
		return err
	}
	if _, ok := t[id]; !ok {
		return ErrNotFound
	}
	t[id] = memRow{rec: Record{ParticipantID: id}, cleared: true}
	return nil
}

func (m *Memory) Scan(_ context.Context, mode model.Mode) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.table(mode)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(t))
	for _, row := range t {
		if !row.cleared {
			out = append(out, row.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
