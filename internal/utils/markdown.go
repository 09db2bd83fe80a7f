package utils

import (
	"strings"

	"k8s.io/klog/v2"
)

var markdownFenceLangs = map[string]bool{"": true, "markdown": true, "md": true}

// ExtractMarkdown 去掉模型输出外层的 ```markdown ... ``` 代码块
// 只识别 markdown/md/无语言标识的代码块；文档内部的其他代码块（如 mermaid）原样保留
func ExtractMarkdown(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		// 代码块前已出现标题，说明输出本身就是文档
		if strings.HasPrefix(trimmed, "#") {
			break
		}
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if markdownFenceLangs[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))] {
			start = i
		}
		break
	}
	if start < 0 {
		return content
	}

	// 从末尾找闭合标记，内部的代码块不影响外层范围
	end := -1
	for i := len(lines) - 1; i > start; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	if end < 0 {
		klog.V(6).Infof("[ExtractMarkdown] 代码块未闭合，返回原始内容")
		return content
	}

	klog.V(6).Infof("[ExtractMarkdown] 提取到 Markdown 代码块: start=%d, end=%d", start, end)
	return strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
}
