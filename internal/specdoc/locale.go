package specdoc

import (
	"golang.org/x/text/language"

	"github.com/specbuilder/backend/internal/model"
)

// Locale 文档语言，决定章节标题等展示用文本
type Locale string

const (
	LocaleJA Locale = "ja"
	LocaleEN Locale = "en"
)

// SectionCount 固定章节数，两种语言必须一致
const SectionCount = 8

type labelSet struct {
	sections         [SectionCount]string
	placeholderTitle string
	notSet           string
	speakers         map[model.Role]string
	initialDocument  string
}

var labels = map[Locale]labelSet{
	LocaleJA: {
		sections: [SectionCount]string{
			"1. 概要",
			"2. ユーザー種別",
			"3. 機能一覧",
			"4. 画面一覧",
			"5. 画面フロー",
			"6. 各画面詳細",
			"7. 技術スタック",
			"8. 決定事項・補足情報",
		},
		placeholderTitle: "# プロジェクト名",
		notSet:           "未設定",
		speakers: map[model.Role]string{
			model.RoleUser:      "ユーザー",
			model.RoleAssistant: "AI",
		},
		initialDocument: initialDocumentJA,
	},
	LocaleEN: {
		sections: [SectionCount]string{
			"1. Overview",
			"2. User Types",
			"3. Features",
			"4. Screen List",
			"5. Screen Flow",
			"6. Screen Details",
			"7. Tech Stack",
			"8. Decisions & Notes",
		},
		placeholderTitle: "# Project Name",
		notSet:           "Not set",
		speakers: map[model.Role]string{
			model.RoleUser:      "User",
			model.RoleAssistant: "AI",
		},
		initialDocument: initialDocumentEN,
	},
}

var supported = []language.Tag{language.Japanese, language.English}

var matcher = language.NewMatcher(supported)

// ParseLocale 解析语言标记或 Accept-Language 头，无法识别时返回 fallback
func ParseLocale(s string, fallback Locale) Locale {
	if s == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(s)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	if supported[index] == language.English {
		return LocaleEN
	}
	return LocaleJA
}

func (l Locale) set() labelSet {
	if ls, ok := labels[l]; ok {
		return ls
	}
	return labels[LocaleJA]
}

// Valid 是否为支持的语言
func (l Locale) Valid() bool {
	_, ok := labels[l]
	return ok
}

// SectionNames 按固定顺序返回章节名
func (l Locale) SectionNames() []string {
	ls := l.set()
	names := make([]string, SectionCount)
	copy(names, ls.sections[:])
	return names
}

// PlaceholderTitle 返回标题占位行，如 "# Project Name"
func (l Locale) PlaceholderTitle() string {
	return l.set().placeholderTitle
}

// NotSet 返回"未设定"标记
func (l Locale) NotSet() string {
	return l.set().notSet
}

// Speaker 返回会话记录中使用的发言人标签
func (l Locale) Speaker(role model.Role) string {
	if s, ok := l.set().speakers[role]; ok {
		return s
	}
	return string(role)
}

// InitialDocument 新会话或重置后显示的文档
func (l Locale) InitialDocument() string {
	return l.set().initialDocument
}

const initialDocumentJA = `# プロジェクト名

## 1. 概要
- **サービス説明**: 未設定
- **ターゲットユーザー**: 未設定
- **解決する課題**: 未設定
- **類似サービス**: 未設定

## 2. ユーザー種別

| 種別 | 説明 |
|------|------|
| - | - |

## 3. 機能一覧

（未設定）

## 4. 画面一覧

| 画面名 | 対象ユーザー | 概要 |
|--------|------------|------|
| - | - | - |

## 5. 画面フロー

（未設定）

## 6. 各画面詳細

（未設定）

## 7. 技術スタック
- **フロントエンド**: 未設定
- **バックエンド**: 未設定
- **認証**: 未設定
- **デプロイ**: 未設定

## 8. 決定事項・補足情報

（まだ決定事項がありません）
`

const initialDocumentEN = `# Project Name

## 1. Overview
- **Service Description**: Not set
- **Target Users**: Not set
- **Problem to Solve**: Not set
- **Similar Services**: Not set

## 2. User Types

| Type | Description |
|------|-------------|
| - | - |

## 3. Features

(Not set)

## 4. Screen List

| Screen | Target Users | Summary |
|--------|--------------|---------|
| - | - | - |

## 5. Screen Flow

(Not set)

## 6. Screen Details

(Not set)

## 7. Tech Stack
- **Frontend**: Not set
- **Backend**: Not set
- **Authentication**: Not set
- **Deploy**: Not set

## 8. Decisions & Notes

(No decisions yet)
`
