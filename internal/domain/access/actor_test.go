package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope_AdminSeesEverything(t *testing.T) {
	s := Actor{ID: "a", IsAdmin: true}.Scope()

	assert.True(t, s.Unrestricted())
	assert.True(t, s.AllowsDivision(42))
	assert.True(t, s.AllowsAny(nil))
}

func TestScope_RestrictedToAuthorizedDivisions(t *testing.T) {
	s := Actor{ID: "u", Divisions: []int64{3, 1}}.Scope()

	assert.False(t, s.Unrestricted())
	assert.True(t, s.AllowsDivision(1))
	assert.False(t, s.AllowsDivision(2))
	assert.True(t, s.AllowsAny([]int64{2, 3}))
	assert.False(t, s.AllowsAny([]int64{2, 4}))
	assert.False(t, s.AllowsAny(nil))
	assert.Equal(t, []int64{1, 3}, s.DivisionIDs())
}

func TestScope_ZeroValueSeesNothing(t *testing.T) {
	var s Scope
	assert.False(t, s.AllowsDivision(1))
	assert.Empty(t, s.DivisionIDs())
}

func TestActorContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{ID: "x"})
	a, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "x", a.ID)
}
