package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/types"
)

type SourceRepo interface {
	ListActiveByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Source, error)
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	repoLog := baseLog.With("repo", "SourceRepo")
	return &sourceRepo{db: db, log: repoLog}
}

func (r *sourceRepo) ListActiveByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Source
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND status = 'active'", workspaceID).
		Order("name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
