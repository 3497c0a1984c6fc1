package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelf(t *testing.T) {
	owner := Actor{ID: 7}
	other := Actor{ID: 8}

	assert.True(t, Self(owner, Owned(7)).Allowed)
	assert.True(t, Self(owner, Owned(1, 7)).Allowed)
	d := Self(other, Owned(7))
	assert.False(t, d.Allowed)
	assert.Equal(t, "not the owner of this resource", d.Reason)
	assert.False(t, Self(Actor{}, Owned(0)).Allowed, "anonymous never owns")
}

func TestAdminAndAuthenticated(t *testing.T) {
	assert.True(t, Admin(Actor{ID: 1, IsAdmin: true}, Resource{}).Allowed)
	assert.False(t, Admin(Actor{ID: 1}, Resource{}).Allowed)
	assert.True(t, Authenticated(Actor{ID: 1}, Resource{}).Allowed)
	assert.False(t, Authenticated(Actor{}, Resource{}).Allowed)
}

func TestCombinators(t *testing.T) {
	admin := Actor{ID: 1, IsAdmin: true}
	owner := Actor{ID: 2}
	stranger := Actor{ID: 3}
	res := Owned(2)

	assert.True(t, SelfOrAdmin(admin, res).Allowed)
	assert.True(t, SelfOrAdmin(owner, res).Allowed)
	d := SelfOrAdmin(stranger, res)
	assert.False(t, d.Allowed)
	assert.Equal(t, "not the owner of this resource or administrator access required", d.Reason)

	both := And(Self, Admin)
	assert.False(t, both(owner, res).Allowed)
	assert.False(t, both(admin, res).Allowed)
	assert.True(t, both(Actor{ID: 2, IsAdmin: true}, res).Allowed)
	assert.True(t, And()(stranger, res).Allowed)
}
