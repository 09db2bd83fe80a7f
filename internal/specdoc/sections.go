// Package specdoc 实现仕様书的章节模型：Markdown 与章节映射之间的解析、序列化与合并。
package specdoc

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var sectionHeading = regexp.MustCompile(`^## (\d+\. .+)$`)

// Sections 文档的章节映射
// Title 保存完整的一级标题行（"# xxx"），Bodies 以章节标题文本为键
type Sections struct {
	Title  string
	Bodies map[string]string
}

// NewSections 创建空的章节映射
func NewSections() Sections {
	return Sections{Bodies: make(map[string]string)}
}

// TitleText 返回去掉 "# " 前缀的标题
func (s Sections) TitleText() string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s.Title), "#"))
}

// Clone 深拷贝
func (s Sections) Clone() Sections {
	out := Sections{Title: s.Title, Bodies: make(map[string]string, len(s.Bodies))}
	for k, v := range s.Bodies {
		out.Bodies[k] = v
	}
	return out
}

// ParseSections 逐行扫描 Markdown：
// 第一个 "# " 行作为标题；匹配 "## N. xxx" 的行开启新章节；
// 其余行追加到当前章节，第一个章节之前的行被丢弃。解析不会失败。
func ParseSections(markdown string) Sections {
	out := NewSections()

	var (
		current string
		open    bool
		buf     []string
	)
	closeSection := func() {
		if open {
			out.Bodies[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(line, "# ") && out.Title == "" {
			out.Title = line
			continue
		}

		if m := sectionHeading.FindStringSubmatch(line); m != nil {
			closeSection()
			current = m[1]
			open = true
			buf = buf[:0]
			continue
		}

		if open {
			buf = append(buf, line)
		}
	}
	closeSection()

	return out
}

// BuildMarkdown 按 locale 的固定章节顺序输出 Markdown，缺失或为空的章节不输出
func BuildMarkdown(s Sections, locale Locale) string {
	title := strings.TrimSpace(s.Title)
	switch {
	case title == "" || title == "#":
		title = locale.PlaceholderTitle()
	case !strings.HasPrefix(title, "# "):
		title = "# " + strings.TrimLeft(title, "# ")
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, name := range locale.SectionNames() {
		body, ok := s.Bodies[name]
		if !ok || strings.TrimSpace(body) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", name, body)
	}

	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// TitleOf 从 Markdown 中取出标题文本，没有标题时返回空串
func TitleOf(markdown string) string {
	return ParseSections(markdown).TitleText()
}
