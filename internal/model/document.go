package model

import "time"

// DocumentVersion 会话文档的历史版本，每次重新生成追加一条
type DocumentVersion struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SessionID       string    `json:"sessionId" gorm:"size:36;index;not null"`
	Version         int       `json:"version" gorm:"default:1"`
	IsLatest        bool      `json:"isLatest" gorm:"default:false;index"`
	IsDiff          bool      `json:"isDiff"`
	Content         string    `json:"content" gorm:"type:text"`
	TitleChanged    bool      `json:"titleChanged"`
	ChangedSections []string  `json:"changedSections" gorm:"serializer:json;type:text"`
	Insertions      int       `json:"insertions"`
	Deletions       int       `json:"deletions"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
