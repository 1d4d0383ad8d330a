package services

import (
	"sync"
	"time"

	"domiflash/models"
)

const (
	DispatchStatusSent      = "sent"
	DispatchStatusAccepted  = "accepted"
	DispatchStatusRejected  = "rejected"
	DispatchStatusCompleted = "completed"
)

// ValidStatusTransition reports whether a dispatch may move between the two
// statuses. rejected and completed are terminal; a rejection is resolved by
// a brand new dispatch linked via reassigned_from, never by reviving the
// rejected record.
func ValidStatusTransition(from, to string) bool {
	switch from {
	case DispatchStatusSent:
		return to == DispatchStatusAccepted || to == DispatchStatusRejected
	case DispatchStatusAccepted:
		return to == DispatchStatusCompleted
	}
	return false
}

// DispatchLedger stores every dispatch record for the lifetime of the
// process plus the active-dispatch-per-driver index. Records are never
// deleted; terminal dispatches stay retrievable for audit.
type DispatchLedger struct {
	mu         sync.Mutex
	dispatches map[string]*models.Dispatch
	active     map[int64]string
}

func NewDispatchLedger() *DispatchLedger {
	return &DispatchLedger{
		dispatches: make(map[string]*models.Dispatch),
		active:     make(map[int64]string),
	}
}

// Save inserts or overwrites a record by dispatch ID.
func (l *DispatchLedger) Save(d models.Dispatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatches[d.DispatchID] = &d
}

// Get returns a copy of the record, or nil if unknown.
func (l *DispatchLedger) Get(dispatchID string) *models.Dispatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.dispatches[dispatchID]; ok {
		cp := *d
		return &cp
	}
	return nil
}

// SetActiveForDriver overwrites any prior mapping: a driver has at most one
// active dispatch.
func (l *DispatchLedger) SetActiveForDriver(driverChatID int64, dispatchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[driverChatID] = dispatchID
}

// ClearActiveForDriver removes the mapping; no-op if absent.
func (l *DispatchLedger) ClearActiveForDriver(driverChatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, driverChatID)
}

// ActiveDispatchForDriver resolves the driver's active dispatch through the
// index. Returns nil when there is none or when the index points at a
// record that no longer resolves (stale entries must not surface).
func (l *DispatchLedger) ActiveDispatchForDriver(driverChatID int64) *models.Dispatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.active[driverChatID]
	if !ok {
		return nil
	}
	d, ok := l.dispatches[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// Transition moves a dispatch to a new status and stamps the matching
// timestamp, all under the ledger lock, so a reject-triggered reassignment
// can never race an independent accept or complete on the same record. It
// returns a copy of the updated record, or ok=false when the record is
// unknown or the state machine forbids the move.
func (l *DispatchLedger) Transition(dispatchID, to string) (*models.Dispatch, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.dispatches[dispatchID]
	if !ok || !ValidStatusTransition(d.Status, to) {
		return nil, false
	}
	now := time.Now()
	d.Status = to
	switch to {
	case DispatchStatusAccepted:
		d.AcceptedAt = &now
	case DispatchStatusRejected:
		d.RejectedAt = &now
	case DispatchStatusCompleted:
		d.CompletedAt = &now
	}
	cp := *d
	return &cp, true
}
