package admins

import "time"

type Level string

const (
	LevelSupreme  Level = "supreme"
	LevelCountry  Level = "country"
	LevelProvince Level = "province"
	LevelZone     Level = "zone"
)

// Grant ties a user to an administrative level. Non-supreme levels carry
// exactly one jurisdiction node; supreme is global. A user holds at most one
// active grant (primary key on user_id).
type Grant struct {
	UserID         int64
	Level          Level
	JurisdictionID *int64
	Active         bool
	CreatedAt      time.Time
}
