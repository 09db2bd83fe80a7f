package model

// Phase 对话阶段，取值 1..5，只前进不后退
type Phase int

const (
	PhaseOverview Phase = iota + 1
	PhaseUserTypes
	PhaseScreens
	PhaseScreenDetails
	PhaseTechStack
)

const (
	PhaseMin = PhaseOverview
	PhaseMax = PhaseTechStack
)

func (p Phase) Valid() bool {
	return p >= PhaseMin && p <= PhaseMax
}

// Next 返回下一阶段，阶段5 保持不变
func (p Phase) Next() Phase {
	if p >= PhaseMax {
		return PhaseMax
	}
	return p + 1
}

// Phases 按顺序返回全部阶段
func Phases() []Phase {
	return []Phase{PhaseOverview, PhaseUserTypes, PhaseScreens, PhaseScreenDetails, PhaseTechStack}
}
