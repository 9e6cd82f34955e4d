package repos

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/types"
)

// AnswerCacheRepo is the durable answer tier. Expired rows are filtered on
// read and overwritten in place on the next write to the same key.
type AnswerCacheRepo interface {
	Get(ctx context.Context, tx *gorm.DB, cacheKey string) (*types.AnswerCache, error)
	Upsert(ctx context.Context, tx *gorm.DB, cacheKey string, answer datatypes.JSON, expiresAt time.Time) error
}

type answerCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerCacheRepo(db *gorm.DB, baseLog *logger.Logger) AnswerCacheRepo {
	repoLog := baseLog.With("repo", "AnswerCacheRepo")
	return &answerCacheRepo{db: db, log: repoLog}
}

func (r *answerCacheRepo) Get(ctx context.Context, tx *gorm.DB, cacheKey string) (*types.AnswerCache, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.AnswerCache
	err := transaction.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", cacheKey, time.Now().UTC()).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *answerCacheRepo) Upsert(ctx context.Context, tx *gorm.DB, cacheKey string, answer datatypes.JSON, expiresAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := types.AnswerCache{CacheKey: cacheKey, Answer: answer, ExpiresAt: expiresAt}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"answer", "expires_at"}),
		}).
		Create(&row).Error
}

// ToolCacheRepo backs the durable tier for query embeddings and other
// derived tool results keyed by content hash.
type ToolCacheRepo interface {
	Get(ctx context.Context, tx *gorm.DB, cacheKey string) (*types.ToolCache, error)
	Upsert(ctx context.Context, tx *gorm.DB, cacheKey string, value datatypes.JSON, expiresAt time.Time) error
}

type toolCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewToolCacheRepo(db *gorm.DB, baseLog *logger.Logger) ToolCacheRepo {
	repoLog := baseLog.With("repo", "ToolCacheRepo")
	return &toolCacheRepo{db: db, log: repoLog}
}

func (r *toolCacheRepo) Get(ctx context.Context, tx *gorm.DB, cacheKey string) (*types.ToolCache, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.ToolCache
	err := transaction.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", cacheKey, time.Now().UTC()).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *toolCacheRepo) Upsert(ctx context.Context, tx *gorm.DB, cacheKey string, value datatypes.JSON, expiresAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := types.ToolCache{CacheKey: cacheKey, Value: value, ExpiresAt: expiresAt}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(&row).Error
}
