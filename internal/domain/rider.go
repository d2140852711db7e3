package domain

// RiderStatus represents the availability of a delivery rider.
type RiderStatus string

const (
	RiderStatusOnline     RiderStatus = "ONLINE"
	RiderStatusOffline    RiderStatus = "OFFLINE"
	RiderStatusDelivering RiderStatus = "DELIVERING"
)

// Rider represents a delivery agent.
type Rider struct {
	ID     string
	Name   string
	Phone  string
	Status RiderStatus
}
