package model

// UserType 用户种别
type UserType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Feature 某个用户种别可以使用的功能
type Feature struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserTypeID  string `json:"userTypeId"`
}

type Screen struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TargetUsers []string `json:"targetUsers"`
	Description string   `json:"description"`
}

// ScreenFlow 画面迁移，Label 可为空
type ScreenFlow struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

type ScreenDetail struct {
	ScreenID    string   `json:"screenId"`
	DisplayInfo []string `json:"displayInfo"`
	Actions     []string `json:"actions"`
	States      []string `json:"states"`
	Transitions []string `json:"transitions"`
}

type TechStack struct {
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
	Auth     string `json:"auth"`
	Deploy   string `json:"deploy"`
}

// ProjectSpec 对话中逐步补全的产品仕様
// 阶段1: 项目概要；阶段2: 用户种别与功能；阶段3: 画面一览与流程；阶段4: 画面详情；阶段5: 技术栈
type ProjectSpec struct {
	ProjectName     string `json:"projectName"`
	Description     string `json:"description"`
	TargetUsers     string `json:"targetUsers"`
	ProblemToSolve  string `json:"problemToSolve"`
	SimilarServices string `json:"similarServices"`

	UserTypes []UserType `json:"userTypes"`
	Features  []Feature  `json:"features"`

	Screens     []Screen     `json:"screens"`
	ScreenFlows []ScreenFlow `json:"screenFlows"`

	ScreenDetails []ScreenDetail `json:"screenDetails"`

	TechStack TechStack `json:"techStack"`
}

// NewProjectSpec 返回空仕様，列表字段为非 nil 的空切片
func NewProjectSpec() ProjectSpec {
	return ProjectSpec{
		UserTypes:     []UserType{},
		Features:      []Feature{},
		Screens:       []Screen{},
		ScreenFlows:   []ScreenFlow{},
		ScreenDetails: []ScreenDetail{},
	}
}

// Normalize 把 nil 列表替换为空列表，保证序列化形式稳定
func (s *ProjectSpec) Normalize() {
	if s.UserTypes == nil {
		s.UserTypes = []UserType{}
	}
	if s.Features == nil {
		s.Features = []Feature{}
	}
	if s.Screens == nil {
		s.Screens = []Screen{}
	}
	if s.ScreenFlows == nil {
		s.ScreenFlows = []ScreenFlow{}
	}
	if s.ScreenDetails == nil {
		s.ScreenDetails = []ScreenDetail{}
	}
}
