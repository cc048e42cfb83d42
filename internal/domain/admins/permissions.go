package admins

import (
	"context"
	"errors"

	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
)

// ErrUnauthorized is the uniform denial for admin actions. Callers render a
// fixed message and must not leak jurisdiction details.
var ErrUnauthorized = errors.New("admins: not authorized for that territory")

// GeoReader is the slice of the geo repo the resolver needs: the parent chain
// of a node, node itself first, country last.
type GeoReader interface {
	Chain(ctx context.Context, id int64) ([]int64, error)
}

// Resolver centralizes all jurisdiction checks. Territory rules live here and
// nowhere else; call sites never compare admin levels themselves.
type Resolver struct {
	geo GeoReader
}

func NewResolver(g GeoReader) *Resolver { return &Resolver{geo: g} }

// CanDesignateAdmins reports whether the grant may create or modify other
// admin grants. Territory management is delegated down the hierarchy; admin
// designation is not.
func CanDesignateAdmins(g *Grant) bool {
	return g != nil && g.Active && g.Level == LevelSupreme
}

// AuthorizeCreate checks whether the grant may create a node of the given
// level under parentID (nil for a new country). Denials are ErrUnauthorized;
// anything else is an infrastructure failure.
func (r *Resolver) AuthorizeCreate(ctx context.Context, g *Grant, level geo.Level, parentID *int64) error {
	if g == nil || !g.Active {
		return ErrUnauthorized
	}
	switch g.Level {
	case LevelSupreme:
		return nil
	case LevelCountry:
		// Province/zone creation inside the admin's own country only.
		if level == geo.LevelCountry || parentID == nil {
			return ErrUnauthorized
		}
		return r.inJurisdiction(ctx, g, *parentID)
	case LevelProvince:
		if level != geo.LevelZone || parentID == nil {
			return ErrUnauthorized
		}
		return r.inJurisdiction(ctx, g, *parentID)
	default:
		// Zone is the leaf: nothing can be created under it.
		return ErrUnauthorized
	}
}

// AuthorizeManage checks whether the grant may act on an existing node
// (rename, deactivate).
func (r *Resolver) AuthorizeManage(ctx context.Context, g *Grant, node *geo.Node) error {
	if g == nil || !g.Active || node == nil {
		return ErrUnauthorized
	}
	switch g.Level {
	case LevelSupreme:
		return nil
	case LevelCountry:
		if node.Level == geo.LevelCountry {
			return ErrUnauthorized
		}
		return r.inJurisdiction(ctx, g, node.ID)
	case LevelProvince:
		if node.Level != geo.LevelZone {
			return ErrUnauthorized
		}
		return r.inJurisdiction(ctx, g, node.ID)
	case LevelZone:
		if g.JurisdictionID != nil && *g.JurisdictionID == node.ID {
			return nil
		}
		return ErrUnauthorized
	default:
		return ErrUnauthorized
	}
}

// inJurisdiction allows the action when the grant's jurisdiction node appears
// in the target's parent chain. Strict single-grant semantics: only the
// user's own grant is consulted, never a parent admin's.
func (r *Resolver) inJurisdiction(ctx context.Context, g *Grant, targetID int64) error {
	if g.JurisdictionID == nil {
		return ErrUnauthorized
	}
	chain, err := r.geo.Chain(ctx, targetID)
	if err != nil {
		return err
	}
	for _, id := range chain {
		if id == *g.JurisdictionID {
			return nil
		}
	}
	return ErrUnauthorized
}
