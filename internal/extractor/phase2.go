package extractor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/specbuilder/backend/internal/model"
)

const userTypeIDPrefix = "user-type-"

// extractPhase2 按顺序尝试表头规则，第一个解析出至少一行的表格生效
func (rs *ruleSet) extractPhase2(text string) Fragment {
	for _, header := range rs.tableHeaders {
		loc := header.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := text[loc[1]:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}
		if types := parseUserTypeRows(tableBlock(rest)); len(types) > 0 {
			return Fragment{UserTypes: types}
		}
	}
	return Fragment{}
}

// tableBlock 表头之后的表格行，遇到空行、"##" 行或文本末尾结束
func tableBlock(text string) []string {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(rows) == 0 {
				continue
			}
			break
		}
		if strings.HasPrefix(trimmed, "##") {
			break
		}
		rows = append(rows, trimmed)
	}
	return rows
}

func parseUserTypeRows(rows []string) []model.UserType {
	var out []model.UserType
	for _, row := range rows {
		if !strings.HasPrefix(row, "|") || strings.Contains(row, "---") || len(row) <= 3 {
			continue
		}
		cells := splitCells(row)
		if len(cells) < 2 || placeholderRow(cells) {
			continue
		}
		out = append(out, model.UserType{
			ID:          userTypeIDPrefix + uuid.NewString(),
			Name:        cells[0],
			Description: cells[1],
		})
	}
	return out
}

func splitCells(row string) []string {
	var cells []string
	for _, c := range strings.Split(row, "|") {
		c = strings.TrimSpace(c)
		if c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// placeholderRow 初始文档中的 "| - | - |" 占位行
func placeholderRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-") != "" {
			return false
		}
	}
	return true
}
