package model

import (
	"fmt"
	"time"
)

// Occupancy classifies how full a resource is.
type Occupancy string

const (
	OccupancyFull       Occupancy = "full"
	OccupancyAlmostFull Occupancy = "almost-full"
	OccupancyModerate   Occupancy = "moderate"
	OccupancyAvailable  Occupancy = "available"
	OccupancyUnknown    Occupancy = "unknown"
)

// OccupancyOf buckets reserved/capacity into an occupancy level.
// A zero capacity resource has no meaningful ratio and is reported unknown.
func OccupancyOf(reserved, capacity int) Occupancy {
	if capacity <= 0 {
		return OccupancyUnknown
	}
	percent := reserved * 100 / capacity
	switch {
	case percent >= 100:
		return OccupancyFull
	case percent >= 80:
		return OccupancyAlmostFull
	case percent >= 50:
		return OccupancyModerate
	default:
		return OccupancyAvailable
	}
}

// StatusOf derives the occupancy view of r.
func StatusOf(r Resource) ResourceStatus {
	return ResourceStatus{
		Resource:  r,
		Available: r.Available(),
		Occupancy: OccupancyOf(r.ReservedCount, r.Capacity),
	}
}

// FormatRemaining renders a remaining duration as m:ss, rounding partial
// seconds up so that a lease with 200ms left still shows 0:01.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	seconds := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
