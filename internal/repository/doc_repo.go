package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/specbuilder/backend/internal/model"
)

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// CreateVersioned 在事务中计算下一个版本号，并清除旧的 latest 标记
func (r *documentRepository) CreateVersioned(ctx context.Context, doc *model.DocumentVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion sql.NullInt64
		if err := tx.Model(&model.DocumentVersion{}).
			Where("session_id = ?", doc.SessionID).
			Select("MAX(version)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}

		nextVersion := 1
		if maxVersion.Valid {
			nextVersion = int(maxVersion.Int64) + 1
		}

		if err := tx.Model(&model.DocumentVersion{}).
			Where("session_id = ? AND is_latest = ?", doc.SessionID, true).
			Updates(map[string]interface{}{
				"is_latest":  false,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		doc.Version = nextVersion
		doc.IsLatest = true
		if doc.ChangedSections == nil {
			doc.ChangedSections = []string{}
		}
		return tx.Create(doc).Error
	})
}

func (r *documentRepository) GetLatest(ctx context.Context, sessionID string) (*model.DocumentVersion, error) {
	var doc model.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_latest = ?", sessionID, true).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// GetBySession 按版本号倒序
func (r *documentRepository) GetBySession(ctx context.Context, sessionID string) ([]model.DocumentVersion, error) {
	var docs []model.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("version DESC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) GetVersion(ctx context.Context, sessionID string, version int) (*model.DocumentVersion, error) {
	var doc model.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND version = ?", sessionID, version).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.DocumentVersion{}).Error
}
