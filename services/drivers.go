package services

import (
	"sync"

	"domiflash/models"
)

// DriverRegistry owns the courier roster and its availability flags. The
// roster is fixed at startup; all reads and writes go through one mutex so
// two concurrent assignments can never reserve the same driver.
type DriverRegistry struct {
	mu     sync.Mutex
	roster []models.Driver
}

func NewDriverRegistry(roster []models.Driver) *DriverRegistry {
	r := &DriverRegistry{roster: make([]models.Driver, len(roster))}
	copy(r.roster, roster)
	return r
}

// IsDriverChat reports whether a chat belongs to a roster driver. The bot
// router uses this to pick the driver flow over the customer flow.
func (r *DriverRegistry) IsDriverChat(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roster {
		if r.roster[i].ChatID == chatID {
			return true
		}
	}
	return false
}

// GetByChat returns a copy of the driver with the given chat, or nil.
func (r *DriverRegistry) GetByChat(chatID int64) *models.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roster {
		if r.roster[i].ChatID == chatID {
			d := r.roster[i]
			return &d
		}
	}
	return nil
}

// PickAvailable returns the first available driver in registration order
// whose chat is not excluded, flipping it to unavailable before returning.
// Reservation happens at selection time: releasing the lock with the driver
// still available would let a concurrent pick double-book it. A nil result
// means no capacity, which is a normal outcome, not a fault.
func (r *DriverRegistry) PickAvailable(exclude map[int64]bool) *models.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roster {
		if !r.roster[i].IsAvailable || exclude[r.roster[i].ChatID] {
			continue
		}
		r.roster[i].IsAvailable = false
		d := r.roster[i]
		return &d
	}
	return nil
}

// SetAvailable flips a driver's availability. Idempotent; unknown chats are
// a no-op.
func (r *DriverRegistry) SetAvailable(chatID int64, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.roster {
		if r.roster[i].ChatID == chatID {
			r.roster[i].IsAvailable = available
			return
		}
	}
}

// Snapshot returns a copy of the roster for logging and tests.
func (r *DriverRegistry) Snapshot() []models.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Driver, len(r.roster))
	copy(out, r.roster)
	return out
}
