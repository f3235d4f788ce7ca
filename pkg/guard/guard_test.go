package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigipctl/bigipctl/pkg/domain"
)

const testModule = `package bigipctl

deny contains msg if {
	input.partition == "Common"
	input.force
	msg := "forced overwrites in Common are not allowed"
}

deny contains msg if {
	input.policy_type == "parent"
	msg := "parent policies must be imported manually"
}
`

func newGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := New(context.Background(), Options{Module: testModule})
	require.NoError(t, err)
	return g
}

func TestAdmit_Allows(t *testing.T) {
	g := newGuard(t)

	spec := domain.PolicySpec{
		Name:       "app1",
		Partition:  "Tenant1",
		PolicyType: domain.PolicyTypeSecurity,
		Inline:     "<xml/>",
		Force:      true,
	}
	assert.NoError(t, g.Admit(context.Background(), spec))
}

func TestAdmit_Denies(t *testing.T) {
	g := newGuard(t)

	spec := domain.PolicySpec{
		Name:       "app1",
		Partition:  "Common",
		PolicyType: domain.PolicyTypeSecurity,
		Inline:     "<xml/>",
		Force:      true,
	}

	err := g.Admit(context.Background(), spec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGuardRejected)

	var guardErr *domain.GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Contains(t, guardErr.Violations, "forced overwrites in Common are not allowed")
}

func TestAdmit_CollectsAllViolations(t *testing.T) {
	g := newGuard(t)

	spec := domain.PolicySpec{
		Name:       "base",
		Partition:  "Common",
		PolicyType: domain.PolicyTypeParent,
		Force:      true,
	}

	err := g.Admit(context.Background(), spec)
	require.Error(t, err)

	var guardErr *domain.GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Len(t, guardErr.Violations, 2)
}

func TestNew_EmptyModule(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestNew_BadModule(t *testing.T) {
	_, err := New(context.Background(), Options{Module: "package bigipctl\n\ndeny[msg] {"})
	assert.Error(t, err)
}
