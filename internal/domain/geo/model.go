package geo

import "time"

type Level string

const (
	LevelCountry  Level = "country"
	LevelProvince Level = "province"
	LevelZone     Level = "zone"
)

// Child returns the level one step below, or "" for the leaf.
func (l Level) Child() Level {
	switch l {
	case LevelCountry:
		return LevelProvince
	case LevelProvince:
		return LevelZone
	default:
		return ""
	}
}

// NameUnknown is what ResolveName returns for absent or deactivated nodes,
// so display code never has to special-case stale references.
const NameUnknown = "Desconocido"

type Node struct {
	ID        int64
	Level     Level
	ParentID  *int64
	Name      string
	Active    bool
	CreatedAt time.Time
}
