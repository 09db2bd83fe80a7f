// Package extractor 从 AI 回复中提取 ProjectSpec 字段，并与当前仕様做差分合并。
package extractor

import (
	"github.com/specbuilder/backend/internal/model"
)

// Fragment 一次提取得到的部分仕様
// 标量字段为 nil、列表字段为 nil 表示未提取到
type Fragment struct {
	ProjectName     *string `json:"projectName,omitempty"`
	Description     *string `json:"description,omitempty"`
	TargetUsers     *string `json:"targetUsers,omitempty"`
	ProblemToSolve  *string `json:"problemToSolve,omitempty"`
	SimilarServices *string `json:"similarServices,omitempty"`

	UserTypes     []model.UserType     `json:"userTypes,omitempty"`
	Features      []model.Feature      `json:"features,omitempty"`
	Screens       []model.Screen       `json:"screens,omitempty"`
	ScreenFlows   []model.ScreenFlow   `json:"screenFlows,omitempty"`
	ScreenDetails []model.ScreenDetail `json:"screenDetails,omitempty"`
	TechStack     *model.TechStack     `json:"techStack,omitempty"`
}

// IsEmpty 没有任何字段被提取
func (f Fragment) IsEmpty() bool {
	return len(f.Fields()) == 0
}

// Fields 返回已提取字段的 JSON 名，按 ProjectSpec 字段顺序
func (f Fragment) Fields() []string {
	var names []string
	for _, b := range bindings {
		if _, ok := b.value(&f); ok {
			names = append(names, b.name)
		}
	}
	return names
}

// binding 把一个字段在 Fragment 与 ProjectSpec 之间的读写绑定在一起
type binding struct {
	name    string
	value   func(f *Fragment) (any, bool)
	current func(s *model.ProjectSpec) any
	copy    func(dst, src *Fragment)
	apply   func(s *model.ProjectSpec, f *Fragment)
}

func stringBinding(name string, field func(f *Fragment) **string, target func(s *model.ProjectSpec) *string) binding {
	return binding{
		name: name,
		value: func(f *Fragment) (any, bool) {
			p := *field(f)
			if p == nil {
				return nil, false
			}
			return *p, true
		},
		current: func(s *model.ProjectSpec) any { return *target(s) },
		copy:    func(dst, src *Fragment) { *field(dst) = *field(src) },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if p := *field(f); p != nil {
				*target(s) = *p
			}
		},
	}
}

var bindings = []binding{
	stringBinding("projectName",
		func(f *Fragment) **string { return &f.ProjectName },
		func(s *model.ProjectSpec) *string { return &s.ProjectName }),
	stringBinding("description",
		func(f *Fragment) **string { return &f.Description },
		func(s *model.ProjectSpec) *string { return &s.Description }),
	stringBinding("targetUsers",
		func(f *Fragment) **string { return &f.TargetUsers },
		func(s *model.ProjectSpec) *string { return &s.TargetUsers }),
	stringBinding("problemToSolve",
		func(f *Fragment) **string { return &f.ProblemToSolve },
		func(s *model.ProjectSpec) *string { return &s.ProblemToSolve }),
	stringBinding("similarServices",
		func(f *Fragment) **string { return &f.SimilarServices },
		func(s *model.ProjectSpec) *string { return &s.SimilarServices }),
	{
		name: "userTypes",
		value: func(f *Fragment) (any, bool) {
			return f.UserTypes, f.UserTypes != nil
		},
		current: func(s *model.ProjectSpec) any { return s.UserTypes },
		copy:    func(dst, src *Fragment) { dst.UserTypes = src.UserTypes },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.UserTypes != nil {
				s.UserTypes = append([]model.UserType(nil), f.UserTypes...)
			}
		},
	},
	{
		name: "features",
		value: func(f *Fragment) (any, bool) {
			return f.Features, f.Features != nil
		},
		current: func(s *model.ProjectSpec) any { return s.Features },
		copy:    func(dst, src *Fragment) { dst.Features = src.Features },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.Features != nil {
				s.Features = append([]model.Feature(nil), f.Features...)
			}
		},
	},
	{
		name: "screens",
		value: func(f *Fragment) (any, bool) {
			return f.Screens, f.Screens != nil
		},
		current: func(s *model.ProjectSpec) any { return s.Screens },
		copy:    func(dst, src *Fragment) { dst.Screens = src.Screens },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.Screens != nil {
				s.Screens = append([]model.Screen(nil), f.Screens...)
			}
		},
	},
	{
		name: "screenFlows",
		value: func(f *Fragment) (any, bool) {
			return f.ScreenFlows, f.ScreenFlows != nil
		},
		current: func(s *model.ProjectSpec) any { return s.ScreenFlows },
		copy:    func(dst, src *Fragment) { dst.ScreenFlows = src.ScreenFlows },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.ScreenFlows != nil {
				s.ScreenFlows = append([]model.ScreenFlow(nil), f.ScreenFlows...)
			}
		},
	},
	{
		name: "screenDetails",
		value: func(f *Fragment) (any, bool) {
			return f.ScreenDetails, f.ScreenDetails != nil
		},
		current: func(s *model.ProjectSpec) any { return s.ScreenDetails },
		copy:    func(dst, src *Fragment) { dst.ScreenDetails = src.ScreenDetails },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.ScreenDetails != nil {
				s.ScreenDetails = append([]model.ScreenDetail(nil), f.ScreenDetails...)
			}
		},
	},
	{
		name: "techStack",
		value: func(f *Fragment) (any, bool) {
			if f.TechStack == nil {
				return nil, false
			}
			return *f.TechStack, true
		},
		current: func(s *model.ProjectSpec) any { return s.TechStack },
		copy:    func(dst, src *Fragment) { dst.TechStack = src.TechStack },
		apply: func(s *model.ProjectSpec, f *Fragment) {
			if f.TechStack != nil {
				s.TechStack = *f.TechStack
			}
		},
	},
}
