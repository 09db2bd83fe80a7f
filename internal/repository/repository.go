package repository

import (
	"context"
	"errors"

	"github.com/specbuilder/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// SessionRepository 会话快照整体读写
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]model.Session, error)
}

// DocumentRepository 文档历史版本
type DocumentRepository interface {
	CreateVersioned(ctx context.Context, doc *model.DocumentVersion) error
	GetLatest(ctx context.Context, sessionID string) (*model.DocumentVersion, error)
	GetBySession(ctx context.Context, sessionID string) ([]model.DocumentVersion, error)
	GetVersion(ctx context.Context, sessionID string, version int) (*model.DocumentVersion, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}
