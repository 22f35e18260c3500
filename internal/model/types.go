package model

import "time"

// QueueEntry is one subject waiting in the queue.
//
// Position is 1-based and dense across the whole queue. LeaseExpiresAt is
// non-nil exactly when the entry sits inside the admission window.
type QueueEntry struct {
	SubjectID      string     `json:"subject_id"`
	Position       int        `json:"position"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// HasLease reports whether the entry currently holds a booking lease.
func (e QueueEntry) HasLease() bool {
	return e.LeaseExpiresAt != nil
}

// LeaseExpired reports whether the entry's lease has run out at now.
// Entries without a lease are never expired.
func (e QueueEntry) LeaseExpired(now time.Time) bool {
	return e.LeaseExpiresAt != nil && !now.Before(*e.LeaseExpiresAt)
}

// Resource is a capacity-bounded reservable unit (a bus).
type Resource struct {
	ResourceID    string `json:"resource_id" yaml:"id"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	Capacity      int    `json:"capacity" yaml:"capacity"`
	ReservedCount int    `json:"reserved_count" yaml:"-"`
}

// Available returns the number of unreserved slots.
func (r Resource) Available() int {
	if r.ReservedCount >= r.Capacity {
		return 0
	}
	return r.Capacity - r.ReservedCount
}

// Reservation is a committed claim by one subject on one unit of a resource.
type Reservation struct {
	ReservationID string    `json:"reservation_id"`
	SubjectID     string    `json:"subject_id"`
	ResourceID    string    `json:"resource_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TimeoutInfo is the lease view of a queue entry computed at a point in time.
// It is derived from the persisted deadline on every call and never cached.
type TimeoutInfo struct {
	SubjectID      string        `json:"subject_id"`
	Position       int           `json:"position"`
	InWindow       bool          `json:"in_window"`
	TimeRemaining  time.Duration `json:"time_remaining"`
	LeaseExpiresAt *time.Time    `json:"lease_expires_at,omitempty"`
}

// ResourceStatus is a resource together with its occupancy classification.
type ResourceStatus struct {
	Resource
	Available int       `json:"available"`
	Occupancy Occupancy `json:"occupancy"`
}

// QueueStats summarizes the queue at one instant.
// MaxSize is zero when the queue is unbounded.
type QueueStats struct {
	Size     int  `json:"size"`
	Admitted int  `json:"admitted"`
	Window   int  `json:"window"`
	MaxSize  int  `json:"max_size"`
	Full     bool `json:"full"`
}
