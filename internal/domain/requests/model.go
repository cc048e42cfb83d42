package requests

import "time"

type Status string

// Confirmed and cancelled are terminal; their rows are kept forever as
// history, nothing ever deletes a request.
const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending_confirmation"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ConfirmWindow is the system-wide reservation window. The requester must
// confirm or reject within it; afterwards the sweeper reverts the request.
const ConfirmWindow = 10 * time.Minute

type Payload struct {
	VehicleType string
	CargoType   string
	Description string
	Pickup      string
	Dropoff     string
	Budget      string
}

type Request struct {
	ID              int64
	RequesterID     int64
	ZoneID          int64
	Payload         Payload
	Status          Status
	TransporterID   *int64
	ConfirmDeadline *time.Time
	CreatedAt       time.Time
}
