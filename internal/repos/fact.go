package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/types"
)

// RetrievedFact is a fact row joined with its evidence chunk's document.
type RetrievedFact struct {
	FactKey     string    `gorm:"column:fact_key"`
	FactValue   string    `gorm:"column:fact_value"`
	Confidence  float64   `gorm:"column:confidence"`
	ChunkID     uuid.UUID `gorm:"column:chunk_id"`
	DocumentID  uuid.UUID `gorm:"column:document_id"`
	Title       string    `gorm:"column:title"`
	URL         string    `gorm:"column:url"`
	HeadingPath *string   `gorm:"column:heading_path"`
	SourceName  string    `gorm:"column:source_name"`
}

type FactSearchParams struct {
	WorkspaceID    uuid.UUID
	Scope          ACLScope
	Keys           []string
	ExcludeGeneral bool
	Limit          int
}

type FactRepo interface {
	SearchVisible(ctx context.Context, tx *gorm.DB, params FactSearchParams) ([]*RetrievedFact, error)
}

type factRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFactRepo(db *gorm.DB, baseLog *logger.Logger) FactRepo {
	repoLog := baseLog.With("repo", "FactRepo")
	return &factRepo{db: db, log: repoLog}
}

func (r *factRepo) SearchVisible(ctx context.Context, tx *gorm.DB, params FactSearchParams) ([]*RetrievedFact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(params.Keys) == 0 {
		return []*RetrievedFact{}, nil
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 24
	}

	acl, aclArgs := aclPredicate(params.Scope)

	query := `
	SELECT f.fact_key, f.fact_value, f.confidence, f.chunk_id, f.document_id,
	       d.title, d.canonical_url AS url, c.heading_path, s.name AS source_name
	FROM fact f
	JOIN document d ON d.id = f.document_id
	JOIN chunk c ON c.id = f.chunk_id
	JOIN source s ON s.id = d.source_id
	WHERE f.workspace_id = ? AND s.status = 'active'
	  AND f.fact_key IN ?
	  AND ` + acl
	args := []any{params.WorkspaceID, params.Keys}
	args = append(args, aclArgs...)

	if params.ExcludeGeneral {
		query += `
	  AND s.name NOT LIKE ?`
		args = append(args, types.GeneralKnowledgePrefix+"%")
	}

	query += `
	ORDER BY f.confidence DESC, f.created_at DESC
	LIMIT ?`
	args = append(args, limit)

	var results []*RetrievedFact
	if err := transaction.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
