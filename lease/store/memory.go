// Package store provides lease.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (tests and one-shot CLI runs)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	byID     map[lease.AmendmentID]lease.Amendment
	byKey    map[lease.Key][]lease.AmendmentID
	charges  map[lease.AmendmentID][]lease.ChargeScheduleEntry
	chargeID map[lease.ChargeID]lease.ChargeScheduleEntry

	// insertion order, for stable full-table scans
	amendmentOrder []lease.AmendmentID
	chargeOrder    []lease.ChargeID

	backups map[string]lease.BackupSet
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.byID = make(map[lease.AmendmentID]lease.Amendment)
	m.byKey = make(map[lease.Key][]lease.AmendmentID)
	m.charges = make(map[lease.AmendmentID][]lease.ChargeScheduleEntry)
	m.chargeID = make(map[lease.ChargeID]lease.ChargeScheduleEntry)
	m.amendmentOrder = nil
	m.chargeOrder = nil
	if m.backups == nil {
		m.backups = make(map[string]lease.BackupSet)
	}
}

// Load replaces the snapshot. Malformed and duplicate records are
// skipped and reported, never fatal.
func (m *Memory) Load(_ context.Context, amendments []lease.Amendment, charges []lease.ChargeScheduleEntry) (lease.LoadReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	var report lease.LoadReport

	for _, a := range amendments {
		if err := a.Validate(); err != nil {
			report.AmendmentsSkipped++
			report.Skipped = append(report.Skipped, err.(*lease.MalformedRecordError))
			continue
		}
		if _, dup := m.byID[a.ID]; dup {
			report.AmendmentsSkipped++
			report.Skipped = append(report.Skipped, &lease.MalformedRecordError{
				Record: "amendment", Field: "id", Cause: "duplicate", ID: string(a.ID),
			})
			continue
		}
		m.byID[a.ID] = a
		m.byKey[a.Key()] = append(m.byKey[a.Key()], a.ID)
		m.amendmentOrder = append(m.amendmentOrder, a.ID)
		report.AmendmentsLoaded++
	}

	for _, c := range charges {
		if err := c.Validate(); err != nil {
			report.ChargesSkipped++
			report.Skipped = append(report.Skipped, err.(*lease.MalformedRecordError))
			continue
		}
		if _, dup := m.chargeID[c.ID]; dup {
			report.ChargesSkipped++
			report.Skipped = append(report.Skipped, &lease.MalformedRecordError{
				Record: "charge", Field: "id", Cause: "duplicate", ID: string(c.ID),
			})
			continue
		}
		m.chargeID[c.ID] = c
		m.charges[c.AmendmentID] = append(m.charges[c.AmendmentID], c)
		m.chargeOrder = append(m.chargeOrder, c.ID)
		report.ChargesLoaded++
	}

	return report, nil
}

func (m *Memory) AmendmentsFor(_ context.Context, property lease.PropertyKey, tenant lease.TenantKey) ([]lease.Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byKey[lease.Key{Property: property, Tenant: tenant}]
	result := make([]lease.Amendment, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.byID[id])
	}
	return result, nil
}

func (m *Memory) ChargesFor(_ context.Context, id lease.AmendmentID) ([]lease.ChargeScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]lease.ChargeScheduleEntry, len(m.charges[id]))
	copy(result, m.charges[id])
	return result, nil
}

func (m *Memory) Amendment(_ context.Context, id lease.AmendmentID) (lease.Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return lease.Amendment{}, lease.ErrAmendmentNotFound
	}
	return a, nil
}

func (m *Memory) Keys(_ context.Context) ([]lease.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[lease.Key]bool, len(m.byKey))
	var keys []lease.Key
	// walk insertion order so repeated calls return keys in the same order
	for _, id := range m.amendmentOrder {
		k := m.byID[id].Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Amendments(_ context.Context) ([]lease.Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]lease.Amendment, 0, len(m.amendmentOrder))
	for _, id := range m.amendmentOrder {
		result = append(result, m.byID[id])
	}
	return result, nil
}

func (m *Memory) Charges(_ context.Context) ([]lease.ChargeScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]lease.ChargeScheduleEntry, 0, len(m.chargeOrder))
	for _, id := range m.chargeOrder {
		result = append(result, m.chargeID[id])
	}
	return result, nil
}

// =============================================================================
// ADMIN OPERATIONS - backup-gated mutations
// =============================================================================

// PurgeOrphans removes charge entries whose amendment is absent,
// capturing their pre-images under backupRef first.
func (m *Memory) PurgeOrphans(_ context.Context, backupRef string) (lease.PurgeReport, error) {
	if backupRef == "" {
		return lease.PurgeReport{}, lease.ErrBackupRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.backups[backupRef]
	backup.Ref = backupRef

	report := lease.PurgeReport{BackupRef: backupRef}
	remaining := m.chargeOrder[:0]
	for _, id := range m.chargeOrder {
		c := m.chargeID[id]
		if _, ok := m.byID[c.AmendmentID]; ok {
			remaining = append(remaining, id)
			continue
		}
		backup.Charges = append(backup.Charges, c)
		report.Purged = append(report.Purged, id)
		delete(m.chargeID, id)
		m.removeFromChargeIndex(c)
	}
	m.chargeOrder = remaining
	m.backups[backupRef] = backup
	return report, nil
}

func (m *Memory) removeFromChargeIndex(c lease.ChargeScheduleEntry) {
	entries := m.charges[c.AmendmentID]
	for i := range entries {
		if entries[i].ID == c.ID {
			m.charges[c.AmendmentID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// RemediateDateSequence clears an invalid end date, attaching note as
// the audit annotation. Pre-image goes to the backup set first.
func (m *Memory) RemediateDateSequence(_ context.Context, id lease.AmendmentID, backupRef, note string) error {
	if backupRef == "" {
		return lease.ErrBackupRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return lease.ErrAmendmentNotFound
	}
	if a.HasValidDates() {
		return &lease.MalformedRecordError{Record: "amendment", Field: "end_date", Cause: "already valid", ID: string(id)}
	}

	backup := m.backups[backupRef]
	backup.Ref = backupRef
	backup.Amendments = append(backup.Amendments, a)
	m.backups[backupRef] = backup

	a.End = lease.Date{}
	a.SupersededNote = note
	m.byID[id] = a
	return nil
}

// Backup returns the pre-images captured under a backup reference.
// An unknown reference yields an empty set carrying the requested ref,
// matching the sqlite implementation.
func (m *Memory) Backup(_ context.Context, backupRef string) (lease.BackupSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.backups[backupRef]
	if !ok {
		set = lease.BackupSet{Ref: backupRef}
	}
	return set, nil
}

var _ lease.AdminStore = (*Memory)(nil)
