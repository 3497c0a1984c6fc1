// Package policy holds the authorization rules of the API as small
// composable functions.  A Policy inspects who is acting and which resource
// they act on and returns a Decision with a human readable reason when the
// request is refused.
package policy

import "strings"

// Actor is the authenticated caller.
type Actor struct {
	ID      uint64 `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// Resource describes the target of a request by the ids of the clients that
// own it.  A reservation, for example, is owned by the reserving client and,
// for some operations, by the owner of the post.
type Resource struct {
	OwnerIDs []uint64
}

// Owned returns a Resource owned by ids.
func Owned(ids ...uint64) Resource { return Resource{OwnerIDs: ids} }

// Decision is the outcome of a Policy.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Policy decides whether actor may act on r.
type Policy func(actor Actor, r Resource) Decision

// Authenticated allows any signed-in caller.
func Authenticated(a Actor, _ Resource) Decision {
	if a.ID == 0 {
		return deny("authentication required")
	}
	return allow()
}

// Admin allows administrators only.
func Admin(a Actor, _ Resource) Decision {
	if !a.IsAdmin {
		return deny("administrator access required")
	}
	return allow()
}

// Self allows the caller when they are one of the resource owners.
func Self(a Actor, r Resource) Decision {
	if a.ID != 0 {
		for _, id := range r.OwnerIDs {
			if id == a.ID {
				return allow()
			}
		}
	}
	return deny("not the owner of this resource")
}

// Or allows the request when any policy allows it.  The reasons of the
// refusing policies are joined when all of them refuse.
func Or(ps ...Policy) Policy {
	return func(a Actor, r Resource) Decision {
		reasons := make([]string, 0, len(ps))
		for _, p := range ps {
			d := p(a, r)
			if d.Allowed {
				return d
			}
			reasons = append(reasons, d.Reason)
		}
		return deny(strings.Join(reasons, " or "))
	}
}

// And allows the request only when every policy allows it; the first refusal
// wins.
func And(ps ...Policy) Policy {
	return func(a Actor, r Resource) Decision {
		for _, p := range ps {
			if d := p(a, r); !d.Allowed {
				return d
			}
		}
		return allow()
	}
}

// SelfOrAdmin is the common rule for personal resources.
var SelfOrAdmin = Or(Self, Admin)
