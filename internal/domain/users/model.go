package users

import "time"

type Role string

const (
	RoleRequester   Role = "requester"
	RoleTransporter Role = "transporter"
	RoleBoth        Role = "both"
)

func (r Role) CanRequest() bool   { return r == RoleRequester || r == RoleBoth }
func (r Role) CanTransport() bool { return r == RoleTransporter || r == RoleBoth }

type Status string

const (
	StatusRegistering Status = "registering"
	StatusActive      Status = "active"
	StatusBanned      Status = "banned"
)

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FullName   string
	Phone      string
	Language   string
	Role       Role
	Status     Status
	HomeNodeID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
