package specdoc

import (
	"fmt"
	"strings"

	"github.com/specbuilder/backend/internal/model"
)

type renderLabels struct {
	overview      [4]string
	userTypeHead  string
	featureHead   string
	screenHead    string
	detail        [4]string
	tech          [4]string
	emptyBody     string
	listSeparator string
}

var renders = map[Locale]renderLabels{
	LocaleJA: {
		overview:      [4]string{"サービス説明", "ターゲットユーザー", "解決する課題", "類似サービス"},
		userTypeHead:  "| 種別 | 説明 |\n|------|------|",
		featureHead:   "| 機能 | 説明 |\n|------|------|",
		screenHead:    "| 画面名 | 対象ユーザー | 概要 |\n|--------|------------|------|",
		detail:        [4]string{"表示情報", "操作", "状態", "遷移先"},
		tech:          [4]string{"フロントエンド", "バックエンド", "認証", "デプロイ"},
		emptyBody:     "（未設定）",
		listSeparator: ", ",
	},
	LocaleEN: {
		overview:      [4]string{"Service Description", "Target Users", "Problem to Solve", "Similar Services"},
		userTypeHead:  "| Type | Description |\n|------|-------------|",
		featureHead:   "| Feature | Description |\n|---------|-------------|",
		screenHead:    "| Screen | Target Users | Summary |\n|--------|--------------|---------|",
		detail:        [4]string{"Display Info", "Actions", "States", "Transitions"},
		tech:          [4]string{"Frontend", "Backend", "Authentication", "Deploy"},
		emptyBody:     "(Not set)",
		listSeparator: ", ",
	},
}

func (l Locale) render() renderLabels {
	if r, ok := renders[l]; ok {
		return r
	}
	return renders[LocaleJA]
}

// RenderSpec 把结构化仕様直接渲染为文档（不经过模型）
// 第 8 章（决定事项）无法从结构化字段得出，不输出
func RenderSpec(spec model.ProjectSpec, locale Locale) string {
	r := locale.render()
	names := locale.SectionNames()
	orNotSet := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return locale.NotSet()
		}
		return v
	}
	bullets := func(labels [4]string, values [4]string) string {
		lines := make([]string, 0, len(labels))
		for i, label := range labels {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", label, orNotSet(values[i])))
		}
		return strings.Join(lines, "\n")
	}

	s := NewSections()
	if name := strings.TrimSpace(spec.ProjectName); name != "" {
		s.Title = "# " + name
	}

	s.Bodies[names[0]] = bullets(r.overview, [4]string{spec.Description, spec.TargetUsers, spec.ProblemToSolve, spec.SimilarServices})

	rows := make([]string, 0, len(spec.UserTypes))
	for _, ut := range spec.UserTypes {
		rows = append(rows, fmt.Sprintf("| %s | %s |", ut.Name, ut.Description))
	}
	s.Bodies[names[1]] = r.userTypeHead + "\n" + tableRows(rows, 2)

	features := make([]string, 0, len(spec.UserTypes))
	for _, ut := range spec.UserTypes {
		var fr []string
		for _, f := range spec.Features {
			if f.UserTypeID == ut.ID {
				fr = append(fr, fmt.Sprintf("| %s | %s |", f.Name, f.Description))
			}
		}
		features = append(features, fmt.Sprintf("### %s\n\n%s\n%s", ut.Name, r.featureHead, tableRows(fr, 2)))
	}
	s.Bodies[names[2]] = orEmpty(strings.Join(features, "\n\n"), r.emptyBody)

	rows = rows[:0]
	for _, sc := range spec.Screens {
		rows = append(rows, fmt.Sprintf("| %s | %s | %s |", sc.Name, strings.Join(sc.TargetUsers, r.listSeparator), sc.Description))
	}
	s.Bodies[names[3]] = r.screenHead + "\n" + tableRows(rows, 3)

	s.Bodies[names[4]] = orEmpty(flowchart(spec.ScreenFlows), r.emptyBody)

	details := make([]string, 0, len(spec.ScreenDetails))
	for _, sd := range spec.ScreenDetails {
		title := sd.ScreenID
		for _, sc := range spec.Screens {
			if sc.ID == sd.ScreenID && sc.Name != "" {
				title = sc.Name
				break
			}
		}
		details = append(details, fmt.Sprintf("### %s\n%s", title, bullets(r.detail, [4]string{
			strings.Join(sd.DisplayInfo, r.listSeparator),
			strings.Join(sd.Actions, r.listSeparator),
			strings.Join(sd.States, r.listSeparator),
			strings.Join(sd.Transitions, r.listSeparator),
		})))
	}
	s.Bodies[names[5]] = orEmpty(strings.Join(details, "\n\n"), r.emptyBody)

	ts := spec.TechStack
	s.Bodies[names[6]] = bullets(r.tech, [4]string{ts.Frontend, ts.Backend, ts.Auth, ts.Deploy})

	return BuildMarkdown(s, locale)
}

func tableRows(rows []string, columns int) string {
	if len(rows) == 0 {
		return "|" + strings.Repeat(" - |", columns)
	}
	return strings.Join(rows, "\n")
}

func orEmpty(body, empty string) string {
	if strings.TrimSpace(body) == "" {
		return empty
	}
	return body
}

// flowchart 输出 mermaid 流程图，节点 ID 按出现顺序编号，画面名作为显示文本
func flowchart(flows []model.ScreenFlow) string {
	if len(flows) == 0 {
		return ""
	}
	ids := make(map[string]string)
	node := func(name string) string {
		id, ok := ids[name]
		if !ok {
			id = fmt.Sprintf("S%d", len(ids)+1)
			ids[name] = id
		}
		return fmt.Sprintf("%s[%s]", id, strings.ReplaceAll(name, `"`, "'"))
	}

	var b strings.Builder
	b.WriteString("```mermaid\nflowchart TD\n")
	for _, f := range flows {
		from := node(f.From)
		to := node(f.To)
		if f.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", from, f.Label, to)
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", from, to)
		}
	}
	b.WriteString("```")
	return b.String()
}
