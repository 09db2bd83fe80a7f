package specdoc

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeSet 两个文档版本之间的变化摘要
type ChangeSet struct {
	TitleChanged bool     `json:"titleChanged"`
	Sections     []string `json:"sections"`
	Insertions   int      `json:"insertions"`
	Deletions    int      `json:"deletions"`
}

// Empty 没有任何变化
func (c ChangeSet) Empty() bool {
	return !c.TitleChanged && len(c.Sections) == 0 && c.Insertions == 0 && c.Deletions == 0
}

// Changes 按章节比较两个文档，并统计字符级增删数量
func Changes(before, after string, locale Locale) ChangeSet {
	prev := ParseSections(before)
	next := ParseSections(after)

	cs := ChangeSet{
		TitleChanged: prev.TitleText() != next.TitleText(),
		Sections:     []string{},
	}
	for _, name := range locale.SectionNames() {
		if prev.Bodies[name] != next.Bodies[name] {
			cs.Sections = append(cs.Sections, name)
		}
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			cs.Insertions += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			cs.Deletions += utf8.RuneCountInString(d.Text)
		}
	}
	return cs
}
