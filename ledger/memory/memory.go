// Package memory provides an in-memory ledger.Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-ledger/generic"
	"github.com/warp/attendance-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[key][]ledger.Entry
	byID        map[generic.EntryID]ledger.Entry
	keys        map[ledger.EntryKey]bool
	accrualKeys map[ledger.EntryKey]bool
	idempotency map[string]bool
	reversals   map[generic.EntryID]generic.EntryID

	// FailAppend, when set, is returned by Append. Used to simulate an
	// unavailable store.
	FailAppend func(e ledger.Entry) error
}

type key struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
}

func New() *Memory {
	return &Memory{
		entries:     make(map[key][]ledger.Entry),
		byID:        make(map[generic.EntryID]ledger.Entry),
		keys:        make(map[ledger.EntryKey]bool),
		accrualKeys: make(map[ledger.EntryKey]bool),
		idempotency: make(map[string]bool),
		reversals:   make(map[generic.EntryID]generic.EntryID),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e ledger.Entry) error {
	if m.FailAppend != nil {
		if err := m.FailAppend(e); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := e.Key()
	switch {
	case e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey]:
		return generic.ErrDuplicateEntry
	case e.ReferenceType == ledger.RefPolicyAccrual && m.accrualKeys[k]:
		return generic.ErrDuplicateEntry
	case e.EntryType == ledger.EntryReversal && m.reversals[e.ReversesID] != "":
		return generic.ErrDuplicateEntry
	case m.byID[e.ID].ID != "":
		return generic.ErrDuplicateEntry
	}

	pk := key{EmployeeID: e.EmployeeID, LeaveTypeID: e.LeaveTypeID}
	entries := m.entries[pk]

	// Keep entries ordered by effective date, insertion order on ties.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EffectiveDate.After(e.EffectiveDate)
	})
	entries = append(entries, ledger.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[pk] = entries

	m.byID[e.ID] = e
	m.keys[k] = true
	if e.ReferenceType == ledger.RefPolicyAccrual {
		m.accrualKeys[k] = true
	}
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
	if e.EntryType == ledger.EntryReversal {
		m.reversals[e.ReversesID] = e.ID
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, k ledger.EntryKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keys[k], nil
}

func (m *Memory) ExistsIdempotencyKey(_ context.Context, k string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[k], nil
}

func (m *Memory) Get(_ context.Context, id generic.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return ledger.Entry{}, generic.ErrEntryNotFound
	}
	return e, nil
}

func (m *Memory) ReversalOf(_ context.Context, id generic.EntryID) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revID, ok := m.reversals[id]
	if !ok {
		return nil, nil
	}
	e := m.byID[revID]
	return &e, nil
}

func (m *Memory) Load(_ context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.entries[key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID}]
	result := make([]ledger.Entry, len(src))
	copy(result, src)
	return result, nil
}

func (m *Memory) LoadAsOf(_ context.Context, employeeID generic.EmployeeID, leaveTypeID generic.LeaveTypeID, asOf generic.TimePoint) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries[key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID}] {
		if e.EffectiveDate.After(asOf) {
			break
		}
		result = append(result, e)
	}
	return result, nil
}

// Count returns the number of stored entries. Test helper.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
