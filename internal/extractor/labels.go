package extractor

import (
	"regexp"
	"strings"

	"github.com/specbuilder/backend/internal/specdoc"
)

const maxProjectNameLen = 100

// matcher 一条正则及其取值校验
type matcher struct {
	re     *regexp.Regexp
	accept func(string) bool
}

// rule 一个字段的有序匹配列表，第一条命中且通过校验的结果生效
type rule struct {
	field    string
	matchers []matcher
}

// lineRule 逐行扫描时，标签部分包含任一关键字即视为该字段
type lineRule struct {
	field    string
	keywords []string
}

// ruleSet 单个语言的全部提取规则
type ruleSet struct {
	notSet      string
	placeholder string

	// 阶段1
	labels          []rule
	lines           []lineRule
	headingExcludes []string
	summaryStart    *regexp.Regexp
	phaseMarker     *regexp.Regexp
	summary         []rule

	// 阶段2：定位表头的正则，按顺序尝试
	tableHeaders []*regexp.Regexp
}

// labelPattern 生成 "标签: 值" 形式的正则，允许标签被 ** 包裹
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + label + `\**\s*[：:]\**\s*([^\n]+)`)
}

var (
	h1Pattern = regexp.MustCompile(`(?m)^#[ \t]+([^\n]+)`)
	h2Pattern = regexp.MustCompile(`(?m)^##[ \t]+([^\n]+)`)
)

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsAnyFold(s string, subs []string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func (rs *ruleSet) acceptScalar(v string) bool {
	return v != "" && !containsFold(v, rs.notSet)
}

func (rs *ruleSet) acceptProjectName(v string) bool {
	return rs.acceptScalar(v) &&
		!containsFold(v, rs.placeholder) &&
		len([]rune(v)) < maxProjectNameLen
}

func (rs *ruleSet) acceptHeadingName(v string) bool {
	return rs.acceptProjectName(v) && !containsAnyFold(v, rs.headingExcludes)
}

func (rs *ruleSet) labelled(field string, labels ...string) rule {
	r := rule{field: field}
	accept := rs.acceptScalar
	if field == "projectName" {
		accept = rs.acceptProjectName
	}
	for _, l := range labels {
		r.matchers = append(r.matchers, matcher{re: labelPattern(l), accept: accept})
	}
	return r
}

func (rs *ruleSet) projectNameRule(labels ...string) rule {
	r := rs.labelled("projectName", labels...)
	r.matchers = append(r.matchers,
		matcher{re: h1Pattern, accept: rs.acceptHeadingName},
		matcher{re: h2Pattern, accept: rs.acceptHeadingName},
	)
	return r
}

func newJA() *ruleSet {
	rs := &ruleSet{
		notSet:          "未設定",
		placeholder:     "プロジェクト名",
		headingExcludes: []string{"フェーズ", "概要", "プロジェクト名"},
		summaryStart:    regexp.MustCompile(`サマリー|まとめ|概要`),
		phaseMarker:     regexp.MustCompile(`フェーズ`),
		lines: []lineRule{
			{field: "description", keywords: []string{"説明"}},
			{field: "targetUsers", keywords: []string{"ターゲット"}},
			{field: "problemToSolve", keywords: []string{"課題", "問題"}},
			{field: "similarServices", keywords: []string{"類似"}},
		},
		tableHeaders: []*regexp.Regexp{
			regexp.MustCompile(`\|[^\n]*ユーザー種別[^\n]*\|[^\n]*説明[^\n]*\|`),
			regexp.MustCompile(`\|[^\n]*種別[^\n]*\|[^\n]*説明[^\n]*\|`),
			regexp.MustCompile(`ユーザー種別[\s\S]*?\|[^\n]*\|`),
		},
	}
	rs.labels = []rule{
		rs.projectNameRule("プロジェクト名", "サービス名"),
		rs.labelled("description", "説明", "一言で説明", "サービス説明", "概要"),
		rs.labelled("targetUsers", "ターゲットユーザー", "ターゲット", "対象ユーザー"),
		rs.labelled("problemToSolve", "解決する課題", "課題", "解決する問題"),
		rs.labelled("similarServices", "類似サービス", "参考サービス", "競合サービス"),
	}
	rs.summary = []rule{
		rs.labelled("projectName", "(?:プロジェクト名|サービス名)"),
		rs.labelled("description", "(?:説明|概要)"),
		rs.labelled("targetUsers", "(?:ターゲット|対象)"),
		rs.labelled("problemToSolve", "(?:課題|問題)"),
		rs.labelled("similarServices", "類似"),
	}
	return rs
}

func newEN() *ruleSet {
	rs := &ruleSet{
		notSet:          "Not set",
		placeholder:     "Project Name",
		headingExcludes: []string{"phase", "overview", "project name"},
		summaryStart:    regexp.MustCompile(`(?i)summary`),
		phaseMarker:     regexp.MustCompile(`(?i)phase`),
		lines: []lineRule{
			{field: "description", keywords: []string{"description"}},
			{field: "targetUsers", keywords: []string{"target"}},
			{field: "problemToSolve", keywords: []string{"problem", "challenge"}},
			{field: "similarServices", keywords: []string{"similar", "competitor"}},
		},
		tableHeaders: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\|[^\n]*user type[^\n]*\|[^\n]*description[^\n]*\|`),
			regexp.MustCompile(`(?i)\|[^\n]*type[^\n]*\|[^\n]*description[^\n]*\|`),
		},
	}
	rs.labels = []rule{
		rs.projectNameRule("project name", "service name"),
		rs.labelled("description", "description", "overview", "summary"),
		rs.labelled("targetUsers", "target users?", "target audience"),
		rs.labelled("problemToSolve", "problem to solve", "problem", "challenge"),
		rs.labelled("similarServices", "similar services?", "competitors?"),
	}
	rs.summary = []rule{
		rs.labelled("projectName", "(?:project|service) name"),
		rs.labelled("description", "(?:description|overview)"),
		rs.labelled("targetUsers", "target(?: users?| audience)?"),
		rs.labelled("problemToSolve", "(?:problem(?: to solve)?|challenge)"),
		rs.labelled("similarServices", "(?:similar services?|competitors?)"),
	}
	return rs
}

var ruleSets = map[specdoc.Locale]*ruleSet{
	specdoc.LocaleJA: newJA(),
	specdoc.LocaleEN: newEN(),
}

func rulesFor(locale specdoc.Locale) *ruleSet {
	if rs, ok := ruleSets[locale]; ok {
		return rs
	}
	return ruleSets[specdoc.LocaleJA]
}
