// Package access models the requesting actor and the division-scoped
// visibility capability derived from it.
//
// A Scope is the single source of the visibility predicate: list queries use
// Scope.DivisionIDs to pre-filter in SQL, single-entity fetches use
// Scope.AllowsAny. Both read the same set, so the two paths cannot diverge.
package access

import (
	"context"
	"sort"
)

// Actor is the requesting user. The core never persists or mutates it.
type Actor struct {
	ID        string
	Name      string
	IsAdmin   bool
	Divisions []int64 // divisions the actor may view
}

// Scope returns the visibility capability of the actor.
func (a Actor) Scope() Scope {
	if a.IsAdmin {
		return Scope{unrestricted: true}
	}
	set := make(map[int64]struct{}, len(a.Divisions))
	for _, id := range a.Divisions {
		set[id] = struct{}{}
	}
	return Scope{divisions: set}
}

// Scope restricts visibility to a set of divisions. The zero value sees nothing.
type Scope struct {
	unrestricted bool
	divisions    map[int64]struct{}
}

// Unrestricted returns a scope that sees everything.
func Unrestricted() Scope {
	return Scope{unrestricted: true}
}

// Unrestricted reports whether scoping is bypassed (administrators).
func (s Scope) Unrestricted() bool {
	return s.unrestricted
}

// AllowsDivision reports whether the division is visible.
func (s Scope) AllowsDivision(id int64) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.divisions[id]
	return ok
}

// AllowsAny reports whether at least one of the divisions is visible.
// A record linked to no division is visible to administrators only.
func (s Scope) AllowsAny(divisionIDs []int64) bool {
	if s.unrestricted {
		return true
	}
	for _, id := range divisionIDs {
		if _, ok := s.divisions[id]; ok {
			return true
		}
	}
	return false
}

// DivisionIDs returns the visible divisions in ascending order.
// The result is meaningless when Unrestricted is true.
func (s Scope) DivisionIDs() []int64 {
	ids := make([]int64, 0, len(s.divisions))
	for id := range s.divisions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ─────────────────────────────────────────────────────────────────────────────
// Context propagation
// ─────────────────────────────────────────────────────────────────────────────

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Repository loads actors for the authentication layer.
type Repository interface {
	// GetByID returns the actor with its viewable divisions.
	// Returns shared.ErrActorNotFound when absent.
	GetByID(ctx context.Context, id string) (*Actor, error)

	// GetKeyHash returns the bcrypt hash of the actor's API key.
	GetKeyHash(ctx context.Context, id string) ([]byte, error)
}
