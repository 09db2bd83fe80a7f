package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specbuilder/backend/internal/model"
)

func strPtr(s string) *string { return &s }

func TestReconcileTwiceIsNoChange(t *testing.T) {
	spec := model.NewProjectSpec()
	frag := Fragment{
		ProjectName: strPtr("Acme"),
		UserTypes:   []model.UserType{{ID: "user-type-1", Name: "Admin", Description: "Manages content"}},
	}

	delta, changed := Reconcile(frag, spec)
	require.True(t, changed)
	assert.Equal(t, []string{"projectName", "userTypes"}, delta.Fields())
	Apply(&spec, delta)

	assert.Equal(t, "Acme", spec.ProjectName)
	require.Len(t, spec.UserTypes, 1)

	delta, changed = Reconcile(frag, spec)
	assert.False(t, changed)
	assert.True(t, delta.IsEmpty())
}

func TestReconcileOnlyDifferingFields(t *testing.T) {
	spec := model.NewProjectSpec()
	spec.ProjectName = "Acme"
	spec.TargetUsers = "teams"

	frag := Fragment{ProjectName: strPtr("Acme"), Description: strPtr("tracker")}

	delta, changed := Reconcile(frag, spec)
	require.True(t, changed)
	assert.Nil(t, delta.ProjectName)
	require.NotNil(t, delta.Description)

	Apply(&spec, delta)
	assert.Equal(t, "Acme", spec.ProjectName)
	assert.Equal(t, "tracker", spec.Description)
	assert.Equal(t, "teams", spec.TargetUsers)
}

func TestReconcileDeepCompareLists(t *testing.T) {
	spec := model.NewProjectSpec()
	spec.UserTypes = []model.UserType{{ID: "a", Name: "Admin", Description: "x"}}

	same := Fragment{UserTypes: []model.UserType{{ID: "a", Name: "Admin", Description: "x"}}}
	_, changed := Reconcile(same, spec)
	assert.False(t, changed)

	other := Fragment{UserTypes: []model.UserType{{ID: "a", Name: "Admin", Description: "y"}}}
	_, changed = Reconcile(other, spec)
	assert.True(t, changed)
}

func TestApplyDoesNotAliasFragment(t *testing.T) {
	spec := model.NewProjectSpec()
	frag := Fragment{UserTypes: []model.UserType{{ID: "a", Name: "Admin"}}}

	Apply(&spec, frag)
	frag.UserTypes[0].Name = "changed"

	assert.Equal(t, "Admin", spec.UserTypes[0].Name)
}

func TestApplyEmptyFragmentKeepsSpec(t *testing.T) {
	spec := model.NewProjectSpec()
	spec.ProjectName = "Acme"
	spec.TechStack = model.TechStack{Frontend: "Next.js"}

	Apply(&spec, Fragment{})

	assert.Equal(t, "Acme", spec.ProjectName)
	assert.Equal(t, "Next.js", spec.TechStack.Frontend)
	assert.NotNil(t, spec.Features)
}
