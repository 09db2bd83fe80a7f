package extractor

import (
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/specdoc"
)

// Extract 按阶段从 AI 回复中提取字段
// 阶段3/4/5 与未知阶段返回空结果
func Extract(phase model.Phase, message string, locale specdoc.Locale) Fragment {
	rs := rulesFor(locale)

	var f Fragment
	switch phase {
	case model.PhaseOverview:
		f = rs.extractPhase1(message)
	case model.PhaseUserTypes:
		f = rs.extractPhase2(message)
	case model.PhaseScreens, model.PhaseScreenDetails, model.PhaseTechStack:
		// 画面一览、画面详情、技术栈暂不提取
	}

	klog.V(6).Infof("[Extractor] 提取完成: phase=%d, locale=%s, fields=%v", phase, locale, f.Fields())
	return f
}
