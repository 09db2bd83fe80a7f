package specdoc

import "strings"

// Merge 把差分章节应用到已有章节上
// 差分中内容非空的章节覆盖原章节；差分中缺失或内容为空的章节保持不变；
// 差分中带有非空标题时替换标题
func Merge(base, diff Sections) Sections {
	out := base.Clone()
	if diff.TitleText() != "" {
		out.Title = diff.Title
	}
	for name, body := range diff.Bodies {
		if strings.TrimSpace(body) == "" {
			continue
		}
		out.Bodies[name] = body
	}
	return out
}

// MergeMarkdown 解析已有文档与差分文档，合并后按固定顺序重新输出
func MergeMarkdown(existing, diff string, locale Locale) string {
	return BuildMarkdown(Merge(ParseSections(existing), ParseSections(diff)), locale)
}
