package specdoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specbuilder/backend/internal/model"
)

func TestRenderSpecEmpty(t *testing.T) {
	md := RenderSpec(model.NewProjectSpec(), LocaleEN)

	s := ParseSections(md)
	assert.Equal(t, "# Project Name", s.Title)
	assert.Contains(t, s.Bodies["1. Overview"], "- **Service Description**: Not set")
	assert.Contains(t, s.Bodies["2. User Types"], "| - | - |")
	assert.Equal(t, "(Not set)", s.Bodies["3. Features"])
	assert.Contains(t, s.Bodies["4. Screen List"], "| - | - | - |")
	assert.Equal(t, "(Not set)", s.Bodies["5. Screen Flow"])
	assert.NotContains(t, s.Bodies, "8. Decisions & Notes")
}

func TestRenderSpecFilled(t *testing.T) {
	spec := model.NewProjectSpec()
	spec.ProjectName = "Acme Tracker"
	spec.Description = "Tracks packages"
	spec.UserTypes = []model.UserType{{ID: "u1", Name: "Admin", Description: "Manages content"}}
	spec.Features = []model.Feature{{ID: "f1", Name: "Publish", Description: "Publish posts", UserTypeID: "u1"}}
	spec.Screens = []model.Screen{{ID: "sc1", Name: "Home", TargetUsers: []string{"Admin", "Guest"}, Description: "Landing"}}
	spec.ScreenFlows = []model.ScreenFlow{{From: "Home", To: "Login Page", Label: "sign in"}}
	spec.ScreenDetails = []model.ScreenDetail{{ScreenID: "sc1", Actions: []string{"search"}}}
	spec.TechStack.Frontend = "Next.js"

	md := RenderSpec(spec, LocaleEN)
	s := ParseSections(md)

	assert.Equal(t, "Acme Tracker", s.TitleText())
	assert.Contains(t, s.Bodies["1. Overview"], "- **Service Description**: Tracks packages")
	assert.Contains(t, s.Bodies["2. User Types"], "| Admin | Manages content |")
	assert.Contains(t, s.Bodies["3. Features"], "### Admin")
	assert.Contains(t, s.Bodies["3. Features"], "| Publish | Publish posts |")
	assert.Contains(t, s.Bodies["4. Screen List"], "| Home | Admin, Guest | Landing |")
	assert.Contains(t, s.Bodies["5. Screen Flow"], "S1[Home] -->|sign in| S2[Login Page]")
	assert.Contains(t, s.Bodies["6. Screen Details"], "### Home")
	assert.Contains(t, s.Bodies["6. Screen Details"], "- **Actions**: search")
	assert.Contains(t, s.Bodies["6. Screen Details"], "- **States**: Not set")
	assert.Contains(t, s.Bodies["7. Tech Stack"], "- **Frontend**: Next.js")
}

func TestRenderSpecJapaneseSectionOrder(t *testing.T) {
	md := RenderSpec(model.NewProjectSpec(), LocaleJA)

	require.True(t, strings.HasPrefix(md, "# プロジェクト名"))
	last := -1
	for _, name := range LocaleJA.SectionNames()[:7] {
		idx := strings.Index(md, "## "+name)
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, last)
		last = idx
	}
}
