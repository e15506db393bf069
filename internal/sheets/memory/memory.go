// Package memory is an in-process PeriodMirror used by tests and by
// deployments without a spreadsheet.
package memory

import (
	"context"
	"sort"
	"sync"

	"halfmonth/internal/core"
	ports "halfmonth/internal/sheets"
)

var _ ports.PeriodMirror = (*Mirror)(nil)

type tabKey struct {
	user string
	key  core.PeriodKey
}

type Mirror struct {
	mu   sync.Mutex
	tabs map[tabKey]core.Period
	err  error
}

func New() *Mirror {
	return &Mirror{tabs: make(map[tabKey]core.Period)}
}

// FailWith makes every subsequent call return err; nil restores normal
// behaviour.
func (m *Mirror) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Mirror) MirrorPeriod(_ context.Context, userID string, p core.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tabs[tabKey{userID, p.Key}] = p.Clone()
	return nil
}

func (m *Mirror) RemovePeriod(_ context.Context, userID string, key core.PeriodKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.tabs, tabKey{userID, key})
	return nil
}

// Tab returns the mirrored copy of a period.
func (m *Mirror) Tab(userID string, key core.PeriodKey) (core.Period, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tabs[tabKey{userID, key}]
	return p, ok
}

// Keys lists a user's mirrored periods in chronological order.
func (m *Mirror) Keys(userID string) []core.PeriodKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []core.PeriodKey
	for k := range m.tabs {
		if k.user == userID {
			keys = append(keys, k.key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
