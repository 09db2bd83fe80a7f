package specdoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionsBasic(t *testing.T) {
	md := "preamble dropped\n# Acme Tracker\n\n## 1. Overview\n\n- **Service Description**: tracks things\n\n## 2. User Types\n\n| Type | Description |\n|---|---|\n| Admin | Manages content |\n"

	s := ParseSections(md)

	assert.Equal(t, "# Acme Tracker", s.Title)
	assert.Equal(t, "Acme Tracker", s.TitleText())
	require.Len(t, s.Bodies, 2)
	assert.Equal(t, "- **Service Description**: tracks things", s.Bodies["1. Overview"])
	assert.Equal(t, "| Type | Description |\n|---|---|\n| Admin | Manages content |", s.Bodies["2. User Types"])
}

func TestParseSectionsKeepsFirstTitle(t *testing.T) {
	md := "# First\n## 1. Overview\nbody\n# Second\nmore"

	s := ParseSections(md)

	assert.Equal(t, "# First", s.Title)
	assert.Equal(t, "body\n# Second\nmore", s.Bodies["1. Overview"])
}

func TestParseSectionsUnnumberedHeadingIsBody(t *testing.T) {
	md := "## 1. Overview\n## Notes\ntext\n### Sub\nmore"

	s := ParseSections(md)

	require.Len(t, s.Bodies, 1)
	assert.Equal(t, "## Notes\ntext\n### Sub\nmore", s.Bodies["1. Overview"])
}

func TestParseSectionsEmptyAndMalformed(t *testing.T) {
	assert.Empty(t, ParseSections("").Bodies)
	assert.Empty(t, ParseSections("no headings at all\n|a|b|").Bodies)

	s := ParseSections("## 3. Features\n\n\n")
	body, ok := s.Bodies["3. Features"]
	assert.True(t, ok)
	assert.Equal(t, "", body)
}

func TestParseSectionsCRLF(t *testing.T) {
	s := ParseSections("# T\r\n## 1. 概要\r\n本文\r\n")
	assert.Equal(t, "# T", s.Title)
	assert.Equal(t, "本文", s.Bodies["1. 概要"])
}

func TestBuildMarkdownCanonicalOrder(t *testing.T) {
	s := NewSections()
	s.Title = "# Acme"
	s.Bodies["8. Decisions & Notes"] = "- decided"
	s.Bodies["2. User Types"] = "types"
	s.Bodies["1. Overview"] = "overview"
	s.Bodies["5. Screen Flow"] = "   "
	s.Bodies["9. Unknown"] = "dropped"

	md := BuildMarkdown(s, LocaleEN)

	expected := "# Acme\n\n## 1. Overview\n\noverview\n\n## 2. User Types\n\ntypes\n\n## 8. Decisions & Notes\n\n- decided"
	assert.Equal(t, expected, md)
}

func TestBuildMarkdownPlaceholderTitle(t *testing.T) {
	assert.Equal(t, "# Project Name", BuildMarkdown(NewSections(), LocaleEN))
	assert.Equal(t, "# プロジェクト名", BuildMarkdown(NewSections(), LocaleJA))

	s := NewSections()
	s.Title = "Bare Title"
	assert.Equal(t, "# Bare Title", BuildMarkdown(s, LocaleEN))
}

func TestBuildParseRoundTrip(t *testing.T) {
	for _, locale := range []Locale{LocaleJA, LocaleEN} {
		names := locale.SectionNames()
		s := NewSections()
		s.Title = "# Round Trip"
		s.Bodies[names[6]] = "- **Frontend**: Next.js"
		s.Bodies[names[0]] = "line one\n\nline three"
		s.Bodies[names[4]] = "```mermaid\ngraph TD\n    A[Top] --> B[Login]\n```"
		s.Bodies[names[2]] = ""

		parsed := ParseSections(BuildMarkdown(s, locale))

		assert.Equal(t, s.Title, parsed.Title)
		require.Len(t, parsed.Bodies, 3, "locale %s", locale)
		for _, idx := range []int{0, 4, 6} {
			assert.Equal(t, s.Bodies[names[idx]], parsed.Bodies[names[idx]])
		}
	}
}

func TestBuildMarkdownOrderIndependentOfInsertion(t *testing.T) {
	names := LocaleJA.SectionNames()

	forward := NewSections()
	backward := NewSections()
	for i := range names {
		forward.Bodies[names[i]] = names[i] + " body"
	}
	for i := len(names) - 1; i >= 0; i-- {
		backward.Bodies[names[i]] = names[i] + " body"
	}

	a := BuildMarkdown(forward, LocaleJA)
	b := BuildMarkdown(backward, LocaleJA)
	assert.Equal(t, a, b)

	last := -1
	for _, name := range names {
		idx := strings.Index(a, "## "+name)
		require.Greater(t, idx, last)
		last = idx
	}
}

func TestInitialDocumentHasAllSections(t *testing.T) {
	for _, locale := range []Locale{LocaleJA, LocaleEN} {
		s := ParseSections(locale.InitialDocument())
		assert.Len(t, s.Bodies, SectionCount)
		for _, name := range locale.SectionNames() {
			assert.NotEmpty(t, s.Bodies[name], "%s: %s", locale, name)
		}
		assert.Equal(t, locale.PlaceholderTitle(), s.Title)
	}
}
