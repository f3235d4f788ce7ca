package importer

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/bigipctl/bigipctl/pkg/domain"
)

var identifierGen = rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_-]{0,30}`)

// Missing policies always resolve to create, whatever the force flag says.
func TestResolveAction_AbsentAlwaysCreates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		device := newFakeDevice()
		im := testImporter(device, Options{})

		spec := domain.PolicySpec{
			Name:       identifierGen.Draw(t, "name"),
			Partition:  identifierGen.Draw(t, "partition"),
			PolicyType: domain.PolicyTypeSecurity,
			Inline:     "<xml/>",
			Force:      rapid.Bool().Draw(t, "force"),
		}

		action, err := im.ResolveAction(context.Background(), spec)
		if err != nil {
			t.Fatalf("resolve action: %v", err)
		}
		if action != domain.ActionCreate {
			t.Fatalf("expected create for absent policy, got %s", action)
		}
	})
}

// Existing policies resolve purely on the force flag.
func TestResolveAction_ExistingFollowsForce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := identifierGen.Draw(t, "name")
		partition := identifierGen.Draw(t, "partition")
		force := rapid.Bool().Draw(t, "force")

		device := newFakeDevice()
		device.addPolicy(partition, name)
		im := testImporter(device, Options{})

		spec := domain.PolicySpec{
			Name:       name,
			Partition:  partition,
			PolicyType: domain.PolicyTypeSecurity,
			Inline:     "<xml/>",
			Force:      force,
		}

		action, err := im.ResolveAction(context.Background(), spec)
		if err != nil {
			t.Fatalf("resolve action: %v", err)
		}

		want := domain.ActionSkip
		if force {
			want = domain.ActionOverwrite
		}
		if action != want {
			t.Fatalf("force=%v: expected %s, got %s", force, want, action)
		}
	})
}
