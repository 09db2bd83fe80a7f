package statemachine

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/specdoc"
)

// phaseRules 单个语言下的阶段检测、同意关键字与推进提案规则
type phaseRules struct {
	detection map[model.Phase][]*regexp.Regexp
	assent    []string
	proposals []*regexp.Regexp
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var rulesByLocale = map[specdoc.Locale]phaseRules{
	specdoc.LocaleJA: {
		detection: map[model.Phase][]*regexp.Regexp{
			model.PhaseOverview: compileAll(
				`(?i)フェーズ\s*1|プロジェクト概要`,
				`サービス名|ターゲットユーザー|解決する課題|類似サービス`,
			),
			model.PhaseUserTypes: compileAll(
				`(?i)フェーズ\s*2|ユーザー種別と機能一覧`,
				`ユーザー種別|機能一覧|誰が何をできる`,
			),
			model.PhaseScreens: compileAll(
				`(?i)フェーズ\s*3|画面一覧と画面フロー`,
				`画面一覧|画面フロー|画面遷移`,
			),
			model.PhaseScreenDetails: compileAll(
				`(?i)フェーズ\s*4|各画面の詳細`,
				`画面の詳細|表示される情報|できる操作|状態|遷移先`,
			),
			model.PhaseTechStack: compileAll(
				`(?i)フェーズ\s*5|技術スタック提案`,
				`技術スタック|フロントエンド|バックエンド|認証|デプロイ`,
			),
		},
		assent: []string{"ok", "okです", "進む", "進みます", "はい", "yes", "了解", "了解です", "お願いします", "進めて"},
		proposals: compileAll(
			`フェーズ\s*([2-5])\s*に進`,
			`フェーズ\s*([2-5])\s*へ`,
			`次のフェーズ`,
		),
	},
	specdoc.LocaleEN: {
		detection: map[model.Phase][]*regexp.Regexp{
			model.PhaseOverview: compileAll(
				`(?i)phase\s*1|project overview`,
				`(?i)service name|target user|problem to solve|similar services`,
			),
			model.PhaseUserTypes: compileAll(
				`(?i)phase\s*2|user types and features`,
				`(?i)user types|feature list`,
			),
			model.PhaseScreens: compileAll(
				`(?i)phase\s*3|screen list and flow`,
				`(?i)screen list|screen flow|navigation`,
			),
			model.PhaseScreenDetails: compileAll(
				`(?i)phase\s*4|screen details`,
				`(?i)screen details|displayed information`,
			),
			model.PhaseTechStack: compileAll(
				`(?i)phase\s*5|tech stack`,
				`(?i)technology stack|frontend|backend|authentication|deployment`,
			),
		},
		assent: []string{"ok", "okay", "proceed", "yes", "sure", "go ahead", "continue", "next", "let's go", "sounds good"},
		proposals: compileAll(
			`(?i)phase\s*([2-5])`,
			`(?i)move to phase\s*([2-5])`,
			`(?i)proceed to phase\s*([2-5])`,
			`(?i)next phase`,
		),
	},
}

// Outcome 一轮对话后状态机的判定结果
type Outcome struct {
	// Detected AI 回复中检测到的阶段，未检测到为 0
	Detected model.Phase
	// Phase 本轮结束后的当前阶段
	Phase model.Phase
	// ExtractPhase 提取字段所归属的阶段
	ExtractPhase model.Phase
	// Advanced 是否因用户同意而推进到下一阶段
	Advanced bool
}

// PhaseStateMachine 对话阶段状态机
// 阶段只能 1->2->3->4->5 单向推进；AI 回复中的阶段声明可以重新同步当前阶段
type PhaseStateMachine struct {
	locale specdoc.Locale
	rules  phaseRules
	fold   cases.Caser
}

// NewPhaseStateMachine 按语言创建状态机，未知语言使用日语规则
func NewPhaseStateMachine(locale specdoc.Locale) *PhaseStateMachine {
	rules, ok := rulesByLocale[locale]
	if !ok {
		locale = specdoc.LocaleJA
		rules = rulesByLocale[locale]
	}
	return &PhaseStateMachine{
		locale: locale,
		rules:  rules,
		fold:   cases.Fold(),
	}
}

// Detect 从阶段1开始依次检测，返回第一个匹配的阶段
func (sm *PhaseStateMachine) Detect(assistantText string) (model.Phase, bool) {
	for _, phase := range model.Phases() {
		for _, re := range sm.rules.detection[phase] {
			if re.MatchString(assistantText) {
				return phase, true
			}
		}
	}
	return 0, false
}

// UserAssents 用户消息是否包含同意推进的关键字（忽略大小写的子串匹配）
func (sm *PhaseStateMachine) UserAssents(userText string) bool {
	folded := sm.fold.String(userText)
	for _, kw := range sm.rules.assent {
		if strings.Contains(folded, sm.fold.String(kw)) {
			return true
		}
	}
	return false
}

// ProposesAdvance AI 回复是否提议进入下一阶段
func (sm *PhaseStateMachine) ProposesAdvance(assistantText string) bool {
	for _, re := range sm.rules.proposals {
		if re.MatchString(assistantText) {
			return true
		}
	}
	return false
}

// Step 处理一轮 用户消息 + AI 回复
// 检测到的阶段只同步结果阶段；是否推进以及提取归属都以本轮开始时的阶段为准
func (sm *PhaseStateMachine) Step(current model.Phase, userText, assistantText string) Outcome {
	if !current.Valid() {
		current = model.PhaseMin
	}

	out := Outcome{ExtractPhase: current, Phase: current}
	if detected, ok := sm.Detect(assistantText); ok {
		out.Detected = detected
		if detected != current {
			klog.V(6).Infof("[PhaseStateMachine] 根据 AI 回复同步阶段: %d -> %d", current, detected)
			out.Phase = detected
		}
	}

	if current < model.PhaseMax && sm.UserAssents(userText) && sm.ProposesAdvance(assistantText) {
		out.Phase = current.Next()
		out.Advanced = true
		klog.V(6).Infof("[PhaseStateMachine] 阶段推进: %d -> %d", current, out.Phase)
	}
	return out
}

// CanAdvance 显式迁移只允许 n -> n（不变）或 n -> n+1
func (sm *PhaseStateMachine) CanAdvance(from, to model.Phase) bool {
	return from.Valid() && to.Valid() && (to == from || to == from+1)
}

// ValidateTransition 验证阶段迁移并返回错误
func (sm *PhaseStateMachine) ValidateTransition(from, to model.Phase) error {
	if !sm.CanAdvance(from, to) {
		return &InvalidPhaseTransitionError{From: from, To: to}
	}
	return nil
}

// InvalidPhaseTransitionError 无效的阶段迁移错误
type InvalidPhaseTransitionError struct {
	From model.Phase
	To   model.Phase
}

func (e *InvalidPhaseTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition: %d -> %d", e.From, e.To)
}
