package extractor

import (
	"strings"
)

// scalarSet 阶段1 按字段名收集的结果
type scalarSet map[string]string

func (s scalarSet) has(field string) bool {
	_, ok := s[field]
	return ok
}

// applyRules 对 text 依次执行规则，已有值的字段跳过
func applyRules(text string, rules []rule, out scalarSet) {
	for _, r := range rules {
		if out.has(r.field) {
			continue
		}
		for _, m := range r.matchers {
			match := m.re.FindStringSubmatch(text)
			if match == nil || len(match) < 2 {
				continue
			}
			value := cleanValue(match[1])
			if m.accept(value) {
				out[r.field] = value
				break
			}
		}
	}
}

// cleanValue 去掉首尾空白与 Markdown 强调符号
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "*")
	return strings.TrimSpace(v)
}

// linePass 逐行兜底：标题行给出项目名，"标签: 值" 行给出其余字段
func (rs *ruleSet) linePass(text string, out scalarSet) {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
			if !out.has("projectName") {
				name := strings.TrimSpace(strings.TrimLeft(line, "#"))
				if rs.acceptHeadingName(name) {
					out["projectName"] = name
				}
			}
			continue
		}

		label, value, ok := splitLabel(line)
		if !ok || !rs.acceptScalar(value) {
			continue
		}
		for _, lr := range rs.lines {
			if out.has(lr.field) {
				continue
			}
			if containsAnyFold(label, lr.keywords) {
				out[lr.field] = value
				break
			}
		}
	}
}

// splitLabel 在第一个半角或全角冒号处切分，并去掉标签上的列表符号与强调符号
func splitLabel(line string) (label, value string, ok bool) {
	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return "", "", false
	}
	label = line[:idx]
	rest := line[idx:]
	if strings.HasPrefix(rest, "：") {
		rest = rest[len("："):]
	} else {
		rest = rest[1:]
	}
	label = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(label), "-*・ "))
	label = strings.Trim(label, "* ")
	return label, cleanValue(rest), true
}

// summaryBlock 从第一个"总结"关键字开始，到其后第一个阶段标记或文本末尾为止
func (rs *ruleSet) summaryBlock(text string) (string, bool) {
	loc := rs.summaryStart.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	block := text[loc[0]:]
	if end := rs.phaseMarker.FindStringIndex(block[loc[1]-loc[0]:]); end != nil {
		block = block[:loc[1]-loc[0]+end[0]]
	}
	return block, true
}

func (rs *ruleSet) extractPhase1(text string) Fragment {
	found := scalarSet{}

	applyRules(text, rs.labels, found)
	rs.linePass(text, found)
	if block, ok := rs.summaryBlock(text); ok {
		applyRules(block, rs.summary, found)
	}

	var f Fragment
	for field, value := range found {
		v := value
		switch field {
		case "projectName":
			f.ProjectName = &v
		case "description":
			f.Description = &v
		case "targetUsers":
			f.TargetUsers = &v
		case "problemToSolve":
			f.ProblemToSolve = &v
		case "similarServices":
			f.SimilarServices = &v
		}
	}
	return f
}
